package subscriber

import "context"

type Repo interface {
	ListActive(ctx context.Context) ([]*Subscriber, error)
}
