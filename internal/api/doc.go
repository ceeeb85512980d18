// Package api serves the live HTTP surface of the cone pilot: the latest
// navigation state, link and worker status, stored run summaries, a
// websocket stream of frame results, frame ingest from an external detector
// and a debug chart of bearing and drive commands.
package api
