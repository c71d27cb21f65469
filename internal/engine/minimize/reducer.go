package minimize

import "slices"

// Reduce shrinks steps, which are assumed to reproduce, to a shorter contiguous run that
// still satisfies reproduces. It only ever drops a prefix and a suffix: halves are tried in
// turn until neither reproduces, and the narrowed range is then reduced again. ok is false
// when no shorter run was found. Errors from reproduces abort the reduction.
func Reduce[T any](steps []T, reproduces func([]T) (bool, error)) (reduced []T, ok bool, err error) {
	n := len(steps)
	switch {
	case n == 0:
		return nil, false, nil
	case n == 1:
		hit, err := reproduces([]T{})
		if err != nil || !hit {
			return nil, false, err
		}
		return []T{}, true, nil
	case n <= 3:
		for i := range n {
			window := slices.Clone(steps[i : i+1])
			hit, err := reproduces(window)
			if err != nil {
				return nil, false, err
			}
			if hit {
				return window, true, nil
			}
		}
		return nil, false, nil
	}

	from, to := 0, n
	for to-from > 1 {
		mid := from + (to-from)/2
		hit, err := reproduces(slices.Clone(steps[from:mid]))
		if err != nil {
			return nil, false, err
		}
		if hit {
			to = mid
			continue
		}
		hit, err = reproduces(slices.Clone(steps[mid:to]))
		if err != nil {
			return nil, false, err
		}
		if hit {
			from = mid
			continue
		}
		break
	}
	if from == 0 && to == n {
		return nil, false, nil
	}

	narrowed := slices.Clone(steps[from:to])
	deeper, ok, err := Reduce(narrowed, reproduces)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return deeper, true, nil
	}
	return narrowed, true, nil
}
