package module

import (
	"sync"
	"testing"
)

type scannerPorts struct {
	Market string
	Shards int
}

func TestRegistry(t *testing.T) {
	t.Run("register then resolve", func(t *testing.T) {
		Reset()

		want := scannerPorts{Market: "nyc", Shards: 16}
		Register("scanner", want)

		got, ok := PortsAs[scannerPorts]("scanner")
		if !ok || got != want {
			t.Fatalf("got=%v ok=%v", got, ok)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		Reset()

		got, ok := PortsAs[scannerPorts]("rollup")
		if ok || got != (scannerPorts{}) {
			t.Fatalf("got=%v ok=%v, want zero+false", got, ok)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		Reset()

		Register("scanner", scannerPorts{Market: "nyc", Shards: 4})
		if _, ok := PortsAs[int]("scanner"); ok {
			t.Fatalf("resolved the wrong type")
		}
	})

	t.Run("re-register overwrites", func(t *testing.T) {
		Reset()

		Register("scanner", scannerPorts{Market: "nyc", Shards: 4})
		Register("scanner", scannerPorts{Market: "chi", Shards: 8})

		got, ok := PortsAs[scannerPorts]("scanner")
		if !ok || got.Market != "chi" || got.Shards != 8 {
			t.Fatalf("got=%v ok=%v", got, ok)
		}
	})

	t.Run("reset clears everything", func(t *testing.T) {
		Reset()

		Register("feed", scannerPorts{Market: "nyc"})
		Reset()

		if _, ok := PortsAs[scannerPorts]("feed"); ok {
			t.Fatalf("value survived Reset")
		}
	})
}

func TestRegistryConcurrentAccess(t *testing.T) {
	Reset()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			Register("scanner", scannerPorts{Market: "nyc", Shards: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, _ = PortsAs[scannerPorts]("scanner")
		}
	}()
	wg.Wait()

	got, ok := PortsAs[scannerPorts]("scanner")
	if !ok || got.Market != "nyc" {
		t.Fatalf("final value = %v ok=%v", got, ok)
	}
}
