package service

// sendLatest delivers v to a capacity-1 channel, replacing any pending value
// so a slow consumer always sees the most recent snapshot.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
