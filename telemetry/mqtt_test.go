package telemetry

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, qos, retained, payload})
	return newFakeToken(p.err)
}

func TestMQTTSink_PublishesRetainedPerCategory(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, MQTTOptions{Topic: "segscan/status/", QoS: 1}, nil)

	sink.Report(CategoryMeanIoU, "0.4200")
	sink.Report(CategoryRunCondition, "live")

	pub.mu.Lock()
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "segscan/status/mean-iou", pub.msgs[0].topic)
	assert.Equal(t, byte(1), pub.msgs[0].qos)
	assert.True(t, pub.msgs[0].retained)
	assert.Equal(t, "0.4200", pub.msgs[0].payload)
	pub.mu.Unlock()

	assert.Eventually(t, func() bool {
		ok, _ := sink.Stats()
		return ok == 2
	}, time.Second, 5*time.Millisecond)
}

func TestMQTTSink_CountsFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := NewMQTTSink(pub, MQTTOptions{Topic: "segscan"}, nil)

	sink.Report(CategoryFrameRate, "1.00")
	assert.Eventually(t, func() bool {
		_, failed := sink.Stats()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
}
