// Package playback accumulates small incoming audio chunks into playback
// units and renders them gaplessly through a double-buffered output slot.
// One Scheduler instance lives for the process lifetime and is re-armed per
// call via Reset/Destroy.
package playback
