// Package vision holds the per-frame detection model consumed by the
// navigation pipeline.
//
// Responsibilities: the Detection and BoundingBox types, decoding of the
// detector's output tensor, yaw-shift prediction of bounding boxes, the
// frame-to-frame association gate and the bearing estimate derived from the
// surviving detections.
//
// Dependency rule: vision depends only on units. It has no
// state of its own; the last accepted detection set is owned by the caller.
package vision
