package di

import (
	"sync"
	"testing"
)

func TestContainerRegisterAndGet(t *testing.T) {
	c := NewContainer()
	c.Register(ServiceCodec, "codec")

	if got := c.Get(ServiceCodec); got != "codec" {
		t.Fatalf("Get = %v", got)
	}
	if c.Get("missing") != nil {
		t.Fatal("missing service should be nil")
	}
	if !c.Has(ServiceCodec) || c.Has("missing") {
		t.Fatal("Has reports wrong membership")
	}
}

func TestResolve(t *testing.T) {
	c := NewContainer()
	c.Register(ServiceConfig, &struct{ Port string }{Port: "8080"})

	cfg, err := Resolve[*struct{ Port string }](c, ServiceConfig)
	if err != nil || cfg.Port != "8080" {
		t.Fatalf("Resolve = %v, %v", cfg, err)
	}
	if _, err := Resolve[string](c, ServiceConfig); err == nil {
		t.Fatal("wrong type should fail")
	}
	if _, err := Resolve[string](c, ServiceLibrary); err == nil {
		t.Fatal("missing service should fail")
	}
}

func TestContainerNamesSorted(t *testing.T) {
	c := NewContainer()
	for _, name := range []string{ServiceSessions, ServiceConfig, ServiceLibrary} {
		c.Register(name, struct{}{})
	}
	names := c.GetNames()
	want := []string{ServiceConfig, ServiceLibrary, ServiceSessions}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("GetNames = %v", names)
		}
	}
}

func TestGetContainerSingleton(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]*Container, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = GetContainer()
		}(i)
	}
	wg.Wait()
	for _, c := range results {
		if c != results[0] {
			t.Fatal("GetContainer returned different instances")
		}
	}
}
