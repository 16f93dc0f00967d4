package geometry

import "fmt"

// curveSteps is the number of line segments a curve command is flattened into.
const curveSteps = 16

// PathCommand is a single path segment in Canvas2D form:
// ["M", x, y], ["L", x, y], ["Q", x1, y1, x, y], ["C", x1, y1, x2, y2, x, y], ["Z"].
type PathCommand []interface{}

// FromCommands builds a compound path from path commands, flattening quadratic
// and cubic curves into line segments.
func FromCommands(cmds []PathCommand) (*Path, error) {
	path := &Path{}
	var cur Subpath
	var pen, start Point
	havePen := false

	flush := func() {
		if len(cur.Points) > 0 {
			path.Subpaths = append(path.Subpaths, cur)
		}
		cur = Subpath{}
	}
	// Drawing after "Z" starts a new sub-path at the pen.
	resume := func() {
		if len(cur.Points) == 0 {
			start = pen
			cur.Points = append(cur.Points, pen)
		}
	}

	for i, cmd := range cmds {
		if len(cmd) == 0 {
			return nil, fmt.Errorf("command %d: %w", i, ErrMalformedPath)
		}
		op, ok := cmd[0].(string)
		if !ok {
			return nil, fmt.Errorf("command %d: operator %v: %w", i, cmd[0], ErrMalformedPath)
		}

		args, err := operands(cmd[1:])
		if err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, op, err)
		}

		switch op {
		case "M":
			if len(args) < 2 {
				return nil, fmt.Errorf("command %d (M): %w", i, ErrMalformedPath)
			}
			flush()
			pen = Pt(args[0], args[1])
			start = pen
			havePen = true
			cur.Points = append(cur.Points, pen)

		case "L":
			if len(args) < 2 || !havePen {
				return nil, fmt.Errorf("command %d (L): %w", i, ErrMalformedPath)
			}
			resume()
			pen = Pt(args[0], args[1])
			cur.Points = append(cur.Points, pen)

		case "Q":
			if len(args) < 4 || !havePen {
				return nil, fmt.Errorf("command %d (Q): %w", i, ErrMalformedPath)
			}
			resume()
			c, end := Pt(args[0], args[1]), Pt(args[2], args[3])
			for s := 1; s <= curveSteps; s++ {
				cur.Points = append(cur.Points, quadAt(pen, c, end, float64(s)/curveSteps))
			}
			pen = end

		case "C":
			if len(args) < 6 || !havePen {
				return nil, fmt.Errorf("command %d (C): %w", i, ErrMalformedPath)
			}
			resume()
			c1, c2, end := Pt(args[0], args[1]), Pt(args[2], args[3]), Pt(args[4], args[5])
			for s := 1; s <= curveSteps; s++ {
				cur.Points = append(cur.Points, cubicAt(pen, c1, c2, end, float64(s)/curveSteps))
			}
			pen = end

		case "Z":
			if len(cur.Points) > 1 && cur.Points[len(cur.Points)-1].ApproxEqual(start, boundaryEps) {
				cur.Points = cur.Points[:len(cur.Points)-1]
			}
			cur.Closed = true
			flush()
			pen = start

		default:
			return nil, fmt.Errorf("command %d: unknown operator %q: %w", i, op, ErrMalformedPath)
		}
	}
	flush()

	if len(path.Subpaths) == 0 {
		return nil, ErrEmptyGeometry
	}
	return path, nil
}

// EllipsePath returns commands for an ellipse centred on the origin, built
// from four cubic bezier arcs.
func EllipsePath(rx, ry float64) []PathCommand {
	// k = 4 * (sqrt(2) - 1) / 3
	k := 0.5522847498
	kx, ky := rx*k, ry*k

	return []PathCommand{
		{"M", rx, 0.0},
		{"C", rx, ky, kx, ry, 0.0, ry},
		{"C", -kx, ry, -rx, ky, -rx, 0.0},
		{"C", -rx, -ky, -kx, -ry, 0.0, -ry},
		{"C", kx, -ry, rx, -ky, rx, 0.0},
		{"Z"},
	}
}

// RectPath returns commands for a w x h rectangle anchored at the origin.
func RectPath(w, h float64) []PathCommand {
	return []PathCommand{
		{"M", 0.0, 0.0},
		{"L", w, 0.0},
		{"L", w, h},
		{"L", 0.0, h},
		{"Z"},
	}
}

func quadAt(p0, c, p1 Point, t float64) Point {
	u := 1 - t
	return p0.Mul(u * u).Add(c.Mul(2 * u * t)).Add(p1.Mul(t * t))
}

func cubicAt(p0, c1, c2, p1 Point, t float64) Point {
	u := 1 - t
	return p0.Mul(u * u * u).
		Add(c1.Mul(3 * u * u * t)).
		Add(c2.Mul(3 * u * t * t)).
		Add(p1.Mul(t * t * t))
}

func operands(vals []interface{}) ([]float64, error) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		switch n := v.(type) {
		case float64:
			out[i] = n
		case float32:
			out[i] = float64(n)
		case int:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("operand %d (%v): %w", i, v, ErrMalformedPath)
		}
	}
	return out, nil
}
