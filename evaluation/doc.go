// Package evaluation scores predicted segmentation masks against ground-truth
// label masks.
//
// A predicted mask carries 0 (background) or 255 (foreground) in its reference
// channel; a ground-truth mask carries 0 or 1. Every pixel pair maps to one
// confusion Outcome. Any other pair is a contract violation between predictor
// and dataset and is reported as a *MalformedMaskError rather than coerced.
//
// IoU is TP/(TP+FP+FN) and is NaN when nothing is foreground in either mask.
// The running mean kept by Accumulator ignores NaN samples.
package evaluation
