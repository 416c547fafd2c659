package relay

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type ForwarderOptions struct {
	BatchSize  int
	MaxRetries int
	BaseDelay  time.Duration
	MaxBackoff time.Duration
	JitterMax  time.Duration

	DispatchTimeout time.Duration
	IdleSleep       time.Duration
	ErrorSleep      time.Duration

	LastErrorMaxLen int

	Logger *logrus.Entry

	Rand *rand.Rand
}

func (o *ForwarderOptions) setDefaults() {
	if o.BatchSize == 0 {
		o.BatchSize = 10
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = 1 * time.Second
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 60 * time.Second
	}
	if o.JitterMax == 0 {
		o.JitterMax = 200 * time.Millisecond
	}
	if o.DispatchTimeout == 0 {
		o.DispatchTimeout = 30 * time.Second
	}
	if o.IdleSleep == 0 {
		o.IdleSleep = 100 * time.Millisecond
	}
	if o.ErrorSleep == 0 {
		o.ErrorSleep = 1 * time.Second
	}
	if o.LastErrorMaxLen == 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}

type MonitorOptions struct {
	Interval           time.Duration
	QueueWarnThreshold int

	Logger *logrus.Entry
}

func (o *MonitorOptions) setDefaults() {
	if o.Interval == 0 {
		o.Interval = 30 * time.Second
	}
	if o.QueueWarnThreshold == 0 {
		o.QueueWarnThreshold = 1000
	}
}
