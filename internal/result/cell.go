package result

import "sync"

// Cell は最新のResultを1つだけ保持し、購読者へファンアウトする。
// 購読者ごとに容量1のメールボックスを持ち、読み遅れた購読者には最新値のみが残る。
// 履歴は保持しない。
type Cell[T any] struct {
	mu      sync.Mutex
	current Result[T]
	subs    map[uint64]chan Result[T]
	nextID  uint64
}

// NewCell は初期値を持つCellを生成する。
func NewCell[T any](initial Result[T]) *Cell[T] {
	return &Cell[T]{
		current: initial,
		subs:    make(map[uint64]chan Result[T]),
	}
}

// Get は現在の値を返す。
func (c *Cell[T]) Get() Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Publish は値を更新し、全購読者のメールボックスを最新値で置き換える。
// 送信はブロックしない。
func (c *Cell[T]) Publish(r Result[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = r
	for _, ch := range c.subs {
		// 未読の古い値を捨ててから最新値を入れる
		select {
		case <-ch:
		default:
		}
		ch <- r
	}
}

// Subscribe は購読を開始し、受信チャネルと購読解除関数を返す。
// チャネルには現在値が即座に1件入る。解除するとチャネルはcloseされる。
func (c *Cell[T]) Subscribe() (<-chan Result[T], func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	ch := make(chan Result[T], 1)
	ch <- c.current
	c.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount は現在の購読者数を返す。テストおよびメトリクス用。
func (c *Cell[T]) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
