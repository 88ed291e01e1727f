package policy

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sessionbroker/broker/pkg/types"
)

func TestCircuitBreakerStateMachine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Circuit Breaker State Machine Suite")
}

// These specs walk the breaker through every transition in the sliding
// window state machine of spec.md §4.6: closed -> open on threshold,
// open -> half_open once the recovery timer elapses, half_open -> closed
// on enough consecutive successes, and half_open -> open immediately on
// any failure.
var _ = Describe("Circuit breaker state machine", func() {
	var (
		clock *fakeClock
		b     *CircuitBreaker
		cfg   types.CircuitBreakerConfig
	)

	BeforeEach(func() {
		clock = &fakeClock{t: time.Unix(0, 0)}
		cfg = types.CircuitBreakerConfig{
			FailureThreshold: 3,
			WindowMs:         1000,
			RecoveryTimeMs:   500,
			SuccessThreshold: 2,
		}
		b = NewCircuitBreaker(cfg)
		b.now = clock.now
	})

	Context("starting closed", func() {
		It("allows calls and stays closed below the failure threshold", func() {
			b.RecordFailure()
			b.RecordFailure()
			Expect(b.GetState()).To(Equal(StateClosed))
			Expect(b.CanExecute()).To(BeTrue())
		})

		It("trips to open once failures within the window reach the threshold", func() {
			b.RecordFailure()
			b.RecordFailure()
			b.RecordFailure()
			Expect(b.GetState()).To(Equal(StateOpen))
			Expect(b.CanExecute()).To(BeFalse())
		})

		It("slides failures out of the window instead of accumulating forever", func() {
			b.RecordFailure()
			b.RecordFailure()
			clock.advance(2 * time.Second) // past WindowMs
			b.RecordFailure()
			Expect(b.GetState()).To(Equal(StateClosed))
			Expect(b.GetFailureCount()).To(Equal(1))
		})
	})

	Context("open", func() {
		BeforeEach(func() {
			b.RecordFailure()
			b.RecordFailure()
			b.RecordFailure()
			Expect(b.GetState()).To(Equal(StateOpen))
		})

		It("rejects calls until the recovery timer elapses", func() {
			Expect(b.CanExecute()).To(BeFalse())
			clock.advance(100 * time.Millisecond)
			Expect(b.CanExecute()).To(BeFalse())
		})

		It("transitions to half_open once the recovery timer elapses", func() {
			clock.advance(600 * time.Millisecond)
			Expect(b.CanExecute()).To(BeTrue())
			Expect(b.GetState()).To(Equal(StateHalfOpen))
		})
	})

	Context("half_open", func() {
		BeforeEach(func() {
			b.RecordFailure()
			b.RecordFailure()
			b.RecordFailure()
			clock.advance(600 * time.Millisecond)
			Expect(b.CanExecute()).To(BeTrue())
			Expect(b.GetState()).To(Equal(StateHalfOpen))
		})

		It("re-trips to open on any failure", func() {
			b.RecordFailure()
			Expect(b.GetState()).To(Equal(StateOpen))
		})

		It("stays half_open until the success threshold is met", func() {
			b.RecordSuccess()
			Expect(b.GetState()).To(Equal(StateHalfOpen))
		})

		It("closes once consecutive successes reach the threshold", func() {
			b.RecordSuccess()
			b.RecordSuccess()
			Expect(b.GetState()).To(Equal(StateClosed))
			Expect(b.GetFailureCount()).To(Equal(0))
		})
	})

	Context("ForceReset", func() {
		It("returns an open breaker to closed with no counters", func() {
			b.RecordFailure()
			b.RecordFailure()
			b.RecordFailure()
			Expect(b.GetState()).To(Equal(StateOpen))

			b.ForceReset()
			Expect(b.GetState()).To(Equal(StateClosed))
			Expect(b.GetFailureCount()).To(Equal(0))
			Expect(b.CanExecute()).To(BeTrue())
		})
	})
})

// fakeClock lets the scenario suite control the breaker's notion of now
// without sleeping in real time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
