package routine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboSDK/flow/channel"
	"github.com/RoboSDK/flow/errors"
)

// publisherDriver registers the producer up front, the way the network
// builder does, and returns the driver closure.
func publisherDriver[R any](t *testing.T, ch *channel.Channel[R], pub *Publisher[R]) func() error {
	t.Helper()
	tok, err := ch.RegisterProducer()
	require.NoError(t, err)
	return func() error { return SpinPublisher(ch, pub, tok) }
}

// consumerDriver subscribes up front and returns the driver closure.
func consumerDriver[A any](t *testing.T, ch *channel.Channel[A], con *Consumer[A]) func() error {
	t.Helper()
	tok, err := ch.Subscribe()
	require.NoError(t, err)
	return func() error { return SpinConsumer(ch, con, tok) }
}

// transformerDriver registers both tokens up front and returns the driver
// closure.
func transformerDriver[A, R any](t *testing.T, in *channel.Channel[A], out *channel.Channel[R], tr *Transformer[A, R]) func() error {
	t.Helper()
	ptok, err := out.RegisterProducer()
	require.NoError(t, err)
	stok, err := in.Subscribe()
	require.NoError(t, err)
	return func() error { return SpinTransformer(in, out, tr, ptok, stok) }
}

// runRoutines launches each driver in its own goroutine and waits for all of
// them, failing the test if the handshake does not complete in time.
func runRoutines(t *testing.T, drivers ...func() error) []error {
	t.Helper()

	results := make([]error, len(drivers))
	var wg sync.WaitGroup
	for i, driver := range drivers {
		wg.Add(1)
		go func(i int, driver func() error) {
			defer wg.Done()
			results[i] = driver()
		}(i, driver)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("routines did not terminate")
	}
	return results
}

func TestSpinSpinner_RunsUntilCancelled(t *testing.T) {
	var count int
	var mu sync.Mutex
	sp := NewSpinner("ticker", func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	go func() {
		time.Sleep(5 * time.Millisecond)
		sp.Handle().RequestCancellation()
	}()

	results := runRoutines(t, func() error { return SpinSpinner(sp) })
	require.NoError(t, results[0])

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, count, 0)
	assert.Equal(t, uint64(count), sp.Invocations())
}

func TestPublisherConsumer_HelloWorld(t *testing.T) {
	ch, err := channel.New[string]("greetings", channel.WithCapacity[string](8))
	require.NoError(t, err)

	pub := NewPublisher("hello", func() string { return "Hello World" })

	var mu sync.Mutex
	var received []string
	con := NewConsumer("collect", func(msg string) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		con.Handle().RequestCancellation()
	}()

	results := runRoutines(t,
		publisherDriver(t, ch, pub),
		consumerDriver(t, ch, con),
	)
	require.NoError(t, results[0])
	require.NoError(t, results[1])

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, received)
	for _, msg := range received {
		assert.Equal(t, "Hello World", msg)
	}
	assert.Equal(t, channel.ConsumerFinalized, ch.State())
	assert.True(t, con.CancellationRequested())
}

func TestPublisherConsumer_DrainLosesNothing(t *testing.T) {
	ch, err := channel.New[int]("numbers",
		channel.WithCapacity[int](4), channel.WithBatchSize[int](4))
	require.NoError(t, err)

	next := 0
	pub := NewPublisher("slow", func() int {
		time.Sleep(2 * time.Millisecond)
		next++
		return next
	})

	var mu sync.Mutex
	var received []int
	con := NewConsumer("fast", func(msg int) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	go func() {
		time.Sleep(15 * time.Millisecond)
		con.Handle().RequestCancellation()
	}()

	results := runRoutines(t,
		publisherDriver(t, ch, pub),
		consumerDriver(t, ch, con),
	)
	require.NoError(t, results[0])
	require.NoError(t, results[1])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ch.Stats().Published, uint64(len(received)),
		"every committed message must be delivered before finalization")
	for i, msg := range received {
		assert.Equal(t, i+1, msg, "per-producer order must hold")
	}
}

func TestTransformerChain_EndToEnd(t *testing.T) {
	in, err := channel.New[int]("raw", channel.WithCapacity[int](8))
	require.NoError(t, err)
	out, err := channel.New[int]("incremented", channel.WithCapacity[int](8))
	require.NoError(t, err)

	next := -1
	pub := NewPublisher("counter", func() int {
		next++
		return next
	})
	tr := NewTransformer("increment", func(x int) int { return x + 1 })

	var mu sync.Mutex
	var received []int
	con := NewConsumer("check", func(msg int) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	go func() {
		time.Sleep(25 * time.Millisecond)
		con.Handle().RequestCancellation()
	}()

	results := runRoutines(t,
		publisherDriver(t, in, pub),
		transformerDriver(t, in, out, tr),
		consumerDriver(t, out, con),
	)
	for _, err := range results {
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, received)
	prev := 0
	for _, msg := range received {
		assert.Greater(t, msg, 0, "transformed values are strictly positive")
		if msg <= prev {
			t.Fatalf("expected strictly increasing values, got %d after %d", msg, prev)
		}
		prev = msg
	}

	assert.Equal(t, channel.ConsumerFinalized, in.State())
	assert.Equal(t, channel.ConsumerFinalized, out.State())
}

func TestFanOut_AllSubscribersSeeEveryMessage(t *testing.T) {
	ch, err := channel.New[int]("magic", channel.WithCapacity[int](16))
	require.NoError(t, err)

	pub := NewPublisher("magic", func() int { return 42 })

	const subscribers = 5
	counts := make([]int, subscribers)
	var mu sync.Mutex
	cons := make([]*Consumer[int], subscribers)
	for i := range cons {
		i := i
		cons[i] = NewConsumer("sub", func(msg int) {
			assert.Equal(t, 42, msg)
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		for _, con := range cons {
			con.Handle().RequestCancellation()
		}
	}()

	drivers := []func() error{publisherDriver(t, ch, pub)}
	for _, con := range cons {
		con := con
		drivers = append(drivers, consumerDriver(t, ch, con))
	}
	results := runRoutines(t, drivers...)
	for _, err := range results {
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	published := int(ch.Stats().Published)
	total := 0
	for i, count := range counts {
		assert.Greater(t, count, 0, "subscriber %d received nothing", i)
		assert.Equal(t, counts[0], count, "fan-out counts must be equal")
		total += count
	}
	assert.Equal(t, subscribers*published, total)
}

func TestConsumerPanic_DrainStillCompletes(t *testing.T) {
	ch, err := channel.New[int]("numbers", channel.WithCapacity[int](8))
	require.NoError(t, err)

	next := 0
	pub := NewPublisher("counter", func() int {
		next++
		return next
	})
	con := NewConsumer("exploding", func(msg int) {
		panic("user callback failure")
	})

	results := runRoutines(t,
		publisherDriver(t, ch, pub),
		consumerDriver(t, ch, con),
	)

	require.NoError(t, results[0], "publisher must not be left blocked")
	require.Error(t, results[1])
	assert.True(t, errors.IsFatal(results[1]), "user callback failure is unrecoverable")
	assert.Equal(t, channel.ConsumerFinalized, ch.State())
}

func TestPublisherPanicMidBatch_StagedPrefixSurvives(t *testing.T) {
	ch, err := channel.New[int]("numbers",
		channel.WithCapacity[int](8), channel.WithBatchSize[int](4))
	require.NoError(t, err)

	next := 0
	pub := NewPublisher("exploding", func() int {
		next++
		if next == 3 {
			panic("user callback failure")
		}
		return next
	})

	var mu sync.Mutex
	var received []int
	con := NewConsumer("collect", func(msg int) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	go func() {
		time.Sleep(15 * time.Millisecond)
		con.Handle().RequestCancellation()
	}()

	results := runRoutines(t,
		publisherDriver(t, ch, pub),
		consumerDriver(t, ch, con),
	)
	require.Error(t, results[0])
	assert.True(t, errors.IsFatal(results[0]))
	require.NoError(t, results[1])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, received,
		"the prefix produced before the failure is still delivered")
	assert.Equal(t, channel.ConsumerFinalized, ch.State())
}

func TestPublisherPanic_PeerProducerNotStalled(t *testing.T) {
	ch, err := channel.New[int]("numbers",
		channel.WithCapacity[int](8), channel.WithBatchSize[int](4))
	require.NoError(t, err)

	badCalls := 0
	bad := NewPublisher("exploding", func() int {
		badCalls++
		if badCalls == 2 {
			panic("user callback failure")
		}
		return -badCalls
	})
	next := 0
	good := NewPublisher("steady", func() int {
		next++
		return next
	})

	var mu sync.Mutex
	var received []int
	con := NewConsumer("collect", func(msg int) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	go func() {
		time.Sleep(25 * time.Millisecond)
		con.Handle().RequestCancellation()
	}()

	results := runRoutines(t,
		publisherDriver(t, ch, bad),
		publisherDriver(t, ch, good),
		consumerDriver(t, ch, con),
	)
	require.Error(t, results[0])
	require.NoError(t, results[1])
	require.NoError(t, results[2])

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, len(received), int(ch.Capacity()),
		"the commit cursor must pass the failed batch's gap, or the healthy producer stalls once the ring fills")
	assert.Equal(t, ch.Stats().Published, uint64(len(received)))
	assert.Equal(t, channel.ConsumerFinalized, ch.State())
}

func TestTransformerPanic_StagedResultsSurvive(t *testing.T) {
	in, err := channel.New[int]("raw", channel.WithCapacity[int](8))
	require.NoError(t, err)
	out, err := channel.New[int]("incremented", channel.WithCapacity[int](8))
	require.NoError(t, err)

	next := -1
	pub := NewPublisher("counter", func() int {
		next++
		return next
	})
	tr := NewTransformer("exploding", func(x int) int {
		if x == 3 {
			panic("user callback failure")
		}
		return x + 1
	})

	var mu sync.Mutex
	var received []int
	con := NewConsumer("collect", func(msg int) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		con.Handle().RequestCancellation()
	}()

	results := runRoutines(t,
		publisherDriver(t, in, pub),
		transformerDriver(t, in, out, tr),
		consumerDriver(t, out, con),
	)
	require.NoError(t, results[0], "publisher must not be left blocked")
	require.Error(t, results[1])
	assert.True(t, errors.IsFatal(results[1]))
	require.NoError(t, results[2])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, received,
		"results staged before the failure are committed, not dropped")
	assert.Equal(t, channel.ConsumerFinalized, in.State())
	assert.Equal(t, channel.ConsumerFinalized, out.State())
}

func TestPublisherHandleDisable_ConsumerStillTerminates(t *testing.T) {
	ch, err := channel.New[int]("numbers", channel.WithCapacity[int](4))
	require.NoError(t, err)

	pub := NewPublisher("short-lived", func() int { return 1 })

	var mu sync.Mutex
	count := 0
	con := NewConsumer("counting", func(msg int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	go func() {
		time.Sleep(5 * time.Millisecond)
		pub.Handle().RequestCancellation()
		time.Sleep(10 * time.Millisecond)
		con.Handle().RequestCancellation()
	}()

	results := runRoutines(t,
		publisherDriver(t, ch, pub),
		consumerDriver(t, ch, con),
	)
	require.NoError(t, results[0])
	require.NoError(t, results[1])
	assert.Equal(t, channel.ConsumerFinalized, ch.State())
}

func TestCallable_Identity(t *testing.T) {
	a := NewPublisher("first", func() int { return 0 })
	b := NewPublisher("", func() int { return 0 })

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "first", a.Name())
	assert.Contains(t, b.Name(), "publisher-", "unnamed callables get a kind-derived name")
	assert.Equal(t, KindPublisher, a.Kind())
	assert.Equal(t, uint64(0), a.Invocations())
}
