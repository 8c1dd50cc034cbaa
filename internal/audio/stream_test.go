package audio

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestStreamBuffer_WriteRead(t *testing.T) {
	b := NewStreamBuffer(16, 2)
	defer b.Close()

	n, err := b.Write([]byte{1, 2, 3, 4, 5, 6})
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if b.Len() != 6 {
		t.Errorf("Len() = %d, want 6", b.Len())
	}

	out := make([]byte, 4)
	n, err = b.Read(out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(out[:n], []byte{1, 2, 3, 4}) {
		t.Errorf("Read got %v", out[:n])
	}
}

func TestStreamBuffer_WrapAround(t *testing.T) {
	b := NewStreamBuffer(8, 1)
	defer b.Close()

	out := make([]byte, 8)
	for round := 0; round < 10; round++ {
		in := []byte{byte(round), byte(round + 1), byte(round + 2), byte(round + 3), byte(round + 4)}
		if _, err := b.Write(in); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		n, err := b.Read(out)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !bytes.Equal(out[:n], in) {
			t.Fatalf("round %d: got %v, want %v", round, out[:n], in)
		}
	}
}

func TestStreamBuffer_ReadTrimsToFrames(t *testing.T) {
	b := NewStreamBuffer(32, 4)
	defer b.Close()

	_, _ = b.Write(make([]byte, 10))

	out := make([]byte, 32)
	n, _ := b.Read(out)
	if n != 8 {
		t.Errorf("Read returned %d bytes, want 8 (two whole frames)", n)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2 left over", b.Len())
	}
}

func TestStreamBuffer_WriteBlocksWhenFull(t *testing.T) {
	b := NewStreamBuffer(4, 1)
	defer b.Close()

	done := make(chan int, 1)
	go func() {
		n, _ := b.Write([]byte{1, 2, 3, 4, 5, 6})
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("Write should block while the ring is full")
	case <-time.After(50 * time.Millisecond):
		// Expected behavior
	}

	out := make([]byte, 4)
	if n, _ := b.Read(out); n != 4 {
		t.Fatalf("Read returned %d", n)
	}

	select {
	case n := <-done:
		if n != 6 {
			t.Errorf("Write returned %d, want 6", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Write did not resume after Read")
	}
}

func TestStreamBuffer_ReadAvailable(t *testing.T) {
	b := NewStreamBuffer(16, 2)
	defer b.Close()

	out := make([]byte, 8)
	if n := b.ReadAvailable(out); n != 0 {
		t.Errorf("ReadAvailable on empty ring = %d", n)
	}
	if b.Stats().Underruns != 1 {
		t.Errorf("expected one underrun, got %d", b.Stats().Underruns)
	}

	_, _ = b.Write([]byte{9, 9, 9, 9})
	if n := b.ReadAvailable(out); n != 4 {
		t.Errorf("ReadAvailable = %d, want 4", n)
	}
}

func TestStreamBuffer_CloseUnblocks(t *testing.T) {
	b := NewStreamBuffer(4, 1)

	readErr := make(chan error, 1)
	go func() {
		_, err := b.Read(make([]byte, 4))
		readErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = b.Close()

	select {
	case err := <-readErr:
		if err != io.EOF {
			t.Errorf("Read after close = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Read")
	}

	if _, err := b.Write([]byte{1}); err != io.ErrClosedPipe {
		t.Errorf("Write after close = %v, want io.ErrClosedPipe", err)
	}
}

func TestStreamBuffer_ResetAndWaitEmpty(t *testing.T) {
	b := NewStreamBuffer(16, 1)
	defer b.Close()

	_, _ = b.Write(make([]byte, 12))
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("Len() after Reset = %d", b.Len())
	}
	if b.Stats().BytesDropped != 12 {
		t.Errorf("BytesDropped = %d, want 12", b.Stats().BytesDropped)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.WaitEmpty(ctx, time.Millisecond); err != nil {
		t.Errorf("WaitEmpty on empty ring: %v", err)
	}

	_, _ = b.Write(make([]byte, 4))
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if err := b.WaitEmpty(short, time.Millisecond); err != context.DeadlineExceeded {
		t.Errorf("WaitEmpty with data = %v, want deadline exceeded", err)
	}
}
