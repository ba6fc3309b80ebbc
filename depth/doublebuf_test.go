package depth

import "testing"

func TestDoubleBufferInitialFlat(t *testing.T) {
	db := NewDoubleBuffer(8, 4)
	if w, h := db.Size(); w != 8 || h != 4 {
		t.Fatalf("Size = %dx%d, want 8x4", w, h)
	}
	front := db.Front()
	if len(front) != 32 {
		t.Fatalf("front length = %v, want 32", len(front))
	}
	for i, v := range front {
		if v != 128 {
			t.Fatalf("front[%d] = %v, want flat 128", i, v)
		}
	}
}

func TestDoubleBufferPublish(t *testing.T) {
	db := NewDoubleBuffer(4, 4)

	for _, gen := range []byte{7, 9, 42} {
		back := db.Back()
		for i := range back {
			back[i] = gen
		}
		db.Publish()
		for i, v := range db.Front() {
			if v != gen {
				t.Fatalf("gen %d: front[%d] = %v", gen, i, v)
			}
		}
	}
}

func TestDoubleBufferFrontSurvivesOnePublish(t *testing.T) {
	db := NewDoubleBuffer(4, 4)
	held := db.Front()

	back := db.Back()
	for i := range back {
		back[i] = 200
	}
	db.Publish()

	// The held frame is now the back buffer but stays intact until
	// the next write.
	for i, v := range held {
		if v != 128 {
			t.Fatalf("held[%d] = %v after one publish, want 128", i, v)
		}
	}
}

func TestDoubleBufferCrossGoroutineHandoff(t *testing.T) {
	db := NewDoubleBuffer(16, 16)
	published := make(chan byte)
	ack := make(chan struct{})

	go func() {
		for gen := byte(1); gen <= 50; gen++ {
			back := db.Back()
			for i := range back {
				back[i] = gen
			}
			db.Publish()
			published <- gen
			<-ack
		}
		close(published)
	}()

	for gen := range published {
		front := db.Front()
		for i, v := range front {
			if v != gen {
				t.Fatalf("gen %d: front[%d] = %v", gen, i, v)
			}
		}
		ack <- struct{}{}
	}
}
