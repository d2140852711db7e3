package tracking

// WindowSize is the number of raw positions kept for smoothing.
const WindowSize = 10

// MinSmoothingSamples is how many positions the window needs before it
// starts emitting the mean instead of the raw point.
const MinSmoothingSamples = 3

// Window is a fixed-capacity ring of recent raw positions. It is a value:
// Push returns a new window and never touches the receiver.
type Window struct {
	lat   [WindowSize]float64
	lng   [WindowSize]float64
	next  int
	count int
}

// Push appends a position, overwriting the oldest once full.
func (w Window) Push(lat, lng float64) Window {
	w.lat[w.next] = lat
	w.lng[w.next] = lng
	w.next = (w.next + 1) % WindowSize
	if w.count < WindowSize {
		w.count++
	}
	return w
}

// Len returns how many positions are held.
func (w Window) Len() int {
	return w.count
}

// Mean returns the arithmetic mean of the held positions.
func (w Window) Mean() (float64, float64) {
	if w.count == 0 {
		return 0, 0
	}
	var sumLat, sumLng float64
	for i := 0; i < w.count; i++ {
		sumLat += w.lat[i]
		sumLng += w.lng[i]
	}
	n := float64(w.count)
	return sumLat / n, sumLng / n
}

// Smooth pushes a raw position and returns the updated window together with
// the position to emit: the raw point while fewer than MinSmoothingSamples are
// held, the window mean afterwards.
func (w Window) Smooth(lat, lng float64) (Window, float64, float64) {
	w = w.Push(lat, lng)
	if w.count < MinSmoothingSamples {
		return w, lat, lng
	}
	mLat, mLng := w.Mean()
	return w, mLat, mLng
}
