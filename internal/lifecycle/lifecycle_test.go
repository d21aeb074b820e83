package lifecycle

import (
	"runtime"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	stopDelay time.Duration
	stopErr   error
	stopped   chan struct{}
}

func (f *fakeServer) Stop() error {
	time.Sleep(f.stopDelay)
	close(f.stopped)
	return f.stopErr
}

type fakeStorage struct {
	closed chan struct{}
}

func (f *fakeStorage) Close() error {
	close(f.closed)
	return nil
}

// withFakeExit swaps exitFunc for the duration of a test so the
// forced-exit paths can be exercised without killing the test binary.
func withFakeExit(t *testing.T) *int32 {
	t.Helper()
	var code int32 = -1
	called := make(chan struct{}, 1)
	orig := exitFunc
	exitFunc = func(c int) {
		atomic.StoreInt32(&code, int32(c))
		select {
		case called <- struct{}{}:
		default:
		}
		runtime.Goexit()
	}
	t.Cleanup(func() { exitFunc = orig })
	return &code
}

func TestRunGracefulShutdownOnSingleSignal(t *testing.T) {
	srv := &fakeServer{stopped: make(chan struct{})}
	st := &fakeStorage{closed: make(chan struct{})}

	resultCh := make(chan error, 1)
	go func() { resultCh <- Run(srv, st, time.Second) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case err := <-resultCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after a single signal")
	}

	select {
	case <-srv.stopped:
	default:
		t.Fatal("Stop was never called")
	}
	select {
	case <-st.closed:
	default:
		t.Fatal("storage was never closed")
	}
}

func TestRunForcesExitOnTimeout(t *testing.T) {
	code := withFakeExit(t)

	srv := &fakeServer{stopDelay: time.Hour, stopped: make(chan struct{})}
	st := &fakeStorage{closed: make(chan struct{})}

	go func() { Run(srv, st, 20*time.Millisecond) }()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	require.Eventually(t, func() bool {
		select {
		case <-st.closed:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(code) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRunForcesExitOnSecondSignal(t *testing.T) {
	code := withFakeExit(t)

	srv := &fakeServer{stopDelay: time.Hour, stopped: make(chan struct{})}
	st := &fakeStorage{closed: make(chan struct{})}

	go func() { Run(srv, st, time.Minute) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(code) == 130
	}, time.Second, 5*time.Millisecond)
}
