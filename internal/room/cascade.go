package room

import (
	"sort"

	"liveboard/internal/geo"
	"liveboard/pkg/wire"
)

// cascadeDelete computes the set of record ids removed together with a frame:
//
//  1. every non-line record whose center lies within the frame rectangle,
//  2. every line record referencing a record marked in pass 1 through
//     start_object_id or end_object_id,
//  3. every remaining unconnected line (no endpoint references) whose
//     first/last-point midpoint lies within the rectangle.
//
// Bounds are inclusive. The returned ids are sorted so peers and tests see a
// deterministic removal set; the caller performs the actual removal.
func cascadeDelete(objects map[string]wire.BoardObject, frame wire.Frame) []string {
	rect := geo.FrameRect(frame.Index)
	marked := make(map[string]struct{})

	for id, obj := range objects {
		if obj.IsLine() {
			continue
		}
		cx := obj.X + obj.Width/2
		cy := obj.Y + obj.Height/2
		if rect.Contains(cx, cy) {
			marked[id] = struct{}{}
		}
	}

	for id, obj := range objects {
		if !obj.IsLine() {
			continue
		}
		if _, startMarked := marked[obj.StartObjectID]; startMarked && obj.StartObjectID != "" {
			marked[id] = struct{}{}
			continue
		}
		if _, endMarked := marked[obj.EndObjectID]; endMarked && obj.EndObjectID != "" {
			marked[id] = struct{}{}
		}
	}

	for id, obj := range objects {
		if _, done := marked[id]; done {
			continue
		}
		if !obj.IsLine() || obj.StartObjectID != "" || obj.EndObjectID != "" {
			continue
		}
		points := make([]geo.Point, len(obj.Points))
		for i, p := range obj.Points {
			points[i] = geo.Point{X: p.X, Y: p.Y}
		}
		mid, ok := geo.Midpoint(points)
		if !ok {
			continue
		}
		if rect.Contains(mid.X, mid.Y) {
			marked[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(marked))
	for id := range marked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
