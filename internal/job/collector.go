package job

import (
	"sync"

	"trackscan/internal/classifier"
)

// Collector is the fan-in barrier for one job's classifier scores. It fires
// its callback once, when the number of distinct classifiers recorded
// reaches the expected count, and then disarms so late or duplicate replies
// are ignored.
type Collector struct {
	mu         sync.Mutex
	armed      bool
	expected   int
	scores     map[classifier.ID]float64
	excluded   map[classifier.ID]struct{}
	onComplete func(map[classifier.ID]float64)
}

// NewCollector returns a disarmed collector.
func NewCollector(onComplete func(map[classifier.ID]float64)) *Collector {
	return &Collector{onComplete: onComplete}
}

// Arm resets the collector for a new job expecting expected distinct
// scores. An expected count of zero fires immediately with an empty map.
func (c *Collector) Arm(expected int) {
	c.mu.Lock()
	c.armed = true
	c.expected = expected
	c.scores = make(map[classifier.ID]float64, expected)
	c.excluded = make(map[classifier.ID]struct{})
	fired := c.takeIfComplete()
	c.mu.Unlock()
	c.fire(fired)
}

// Record stores the score for id. Repeated scores for the same classifier
// overwrite the value without counting twice. It reports whether this call
// completed the barrier.
func (c *Collector) Record(id classifier.ID, score float64) bool {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return false
	}
	if _, gone := c.excluded[id]; gone {
		c.mu.Unlock()
		return false
	}
	c.scores[id] = score
	fired := c.takeIfComplete()
	c.mu.Unlock()
	return c.fire(fired)
}

// Exclude drops id from the expected set, typically because its worker
// failed mid-job. It reports whether this call completed the barrier.
func (c *Collector) Exclude(id classifier.ID) bool {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return false
	}
	if _, done := c.scores[id]; done {
		c.mu.Unlock()
		return false
	}
	if _, gone := c.excluded[id]; gone {
		c.mu.Unlock()
		return false
	}
	c.excluded[id] = struct{}{}
	c.expected--
	fired := c.takeIfComplete()
	c.mu.Unlock()
	return c.fire(fired)
}

// Flush fires the callback with whatever has been recorded, as long as the
// barrier has not already fired. It reports whether it fired.
func (c *Collector) Flush() bool {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return false
	}
	scores := c.scores
	c.disarm()
	c.mu.Unlock()
	return c.fire(scores)
}

// Received returns the number of distinct scores recorded so far.
func (c *Collector) Received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scores)
}

// Armed reports whether the collector is waiting for scores.
func (c *Collector) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// takeIfComplete must be called with mu held.
func (c *Collector) takeIfComplete() map[classifier.ID]float64 {
	if len(c.scores) < c.expected {
		return nil
	}
	scores := c.scores
	c.disarm()
	return scores
}

func (c *Collector) disarm() {
	c.armed = false
	c.expected = 0
	c.scores = nil
	c.excluded = nil
}

func (c *Collector) fire(scores map[classifier.ID]float64) bool {
	if scores == nil {
		return false
	}
	if c.onComplete != nil {
		c.onComplete(scores)
	}
	return true
}
