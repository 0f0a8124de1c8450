package stream

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
)

// ----- Controller Tests -----

func TestController_BackgroundBuffers(t *testing.T) {
	c := NewController("Web.Serve", 0)
	if c.IsForeground() {
		t.Fatal("new controller is in the foreground")
	}

	stdio := c.Stdio()
	fmt.Fprint(stdio.Stdout, "listening\n")
	fmt.Fprint(stdio.Stderr, "warning\n")

	if got := string(c.History()); got != "listening\nwarning\n" {
		t.Errorf("History() = %q", got)
	}
	if c.Name() != "Web.Serve" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestController_ForegroundReplaysThenForwards(t *testing.T) {
	c := NewController("dev", 0)
	fmt.Fprint(c, "one\n")
	fmt.Fprint(c, "two\n")

	var out bytes.Buffer
	if err := c.Foreground(&out); err != nil {
		t.Fatalf("Foreground() error = %v", err)
	}
	if out.String() != "one\ntwo\n" {
		t.Errorf("replayed = %q", out.String())
	}

	fmt.Fprint(c, "three\n")
	if out.String() != "one\ntwo\nthree\n" {
		t.Errorf("forwarded = %q", out.String())
	}

	c.Background()
	fmt.Fprint(c, "four\n")
	if strings.Contains(out.String(), "four") {
		t.Error("output forwarded after Background()")
	}
	if got := string(c.History()); got != "one\ntwo\nthree\nfour\n" {
		t.Errorf("History() = %q, want everything", got)
	}
}

func TestHistory_DropsOldestChunks(t *testing.T) {
	tests := []struct {
		name   string
		max    int
		writes []string
		want   string
	}{
		{"under limit", 10, []string{"abc", "def"}, "abcdef"},
		{"exactly at limit", 6, []string{"abc", "def"}, "abcdef"},
		{"drops whole oldest chunk", 6, []string{"abc", "def", "g"}, "defg"},
		{"drops several chunks", 4, []string{"a", "b", "c", "defg"}, "defg"},
		{"oversized chunk keeps its tail", 3, []string{"ab", "cdefgh"}, "fgh"},
		{"empty writes ignored", 3, []string{"", "ab", ""}, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController("x", tt.max)
			for _, w := range tt.writes {
				_, _ = c.Write([]byte(w))
			}
			if got := string(c.History()); got != tt.want {
				t.Errorf("History() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestController_ConcurrentWrites(t *testing.T) {
	c := NewController("x", 1<<20)
	var out bytes.Buffer
	var outMu sync.Mutex
	_ = c.Foreground(writerFunc(func(p []byte) (int, error) {
		outMu.Lock()
		defer outMu.Unlock()
		return out.Write(p)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = c.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()

	if got := len(c.History()); got != 8*50*5 {
		t.Errorf("len(History()) = %d", got)
	}
	outMu.Lock()
	defer outMu.Unlock()
	if out.Len() != 8*50*5 {
		t.Errorf("forwarded %d bytes", out.Len())
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// ----- Group Tests -----

func TestGroup_SingleForeground(t *testing.T) {
	var out bytes.Buffer
	g := NewGroup(&out)
	a := NewController("a", 0)
	b := NewController("b", 0)
	g.Add(a)
	g.Add(b)
	g.Add(a)

	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}

	fmt.Fprint(a, "a1\n")
	fmt.Fprint(b, "b1\n")

	if ok, err := g.Foreground(0); !ok || err != nil {
		t.Fatalf("Foreground(0) = %v, %v", ok, err)
	}
	if g.Current() != a || !a.IsForeground() {
		t.Error("a is not in the foreground")
	}

	if ok, _ := g.Foreground(1); !ok {
		t.Fatal("Foreground(1) = false")
	}
	if a.IsForeground() {
		t.Error("a stayed in the foreground after switching to b")
	}
	if !b.IsForeground() || g.Current() != b {
		t.Error("b is not in the foreground")
	}

	fmt.Fprint(a, "a2\n")
	fmt.Fprint(b, "b2\n")
	if out.String() != "a1\nb1\nb2\n" {
		t.Errorf("out = %q", out.String())
	}

	g.Background()
	if g.Current() != nil || b.IsForeground() {
		t.Error("Background() left a controller in the foreground")
	}

	if ok, _ := g.Foreground(5); ok {
		t.Error("Foreground(5) = true for out of range index")
	}
	if !reflect.DeepEqual(g.Controllers(), []*Controller{a, b}) {
		t.Error("Controllers() order changed")
	}
}

func TestGroup_ForegroundSameTwiceDoesNotReplay(t *testing.T) {
	var out bytes.Buffer
	g := NewGroup(&out)
	a := NewController("a", 0)
	g.Add(a)
	fmt.Fprint(a, "hello\n")

	_, _ = g.Foreground(0)
	_, _ = g.Foreground(0)
	if out.String() != "hello\n" {
		t.Errorf("out = %q, want a single replay", out.String())
	}
}

// ----- LineWriter Tests -----

func TestLineWriter(t *testing.T) {
	var lines []string
	w := NewLineWriter(func(line string) { lines = append(lines, line) })

	fmt.Fprint(w, "par")
	fmt.Fprint(w, "tial\r\nsecond\n\nthi")
	if !reflect.DeepEqual(lines, []string{"partial", "second", ""}) {
		t.Errorf("lines = %q", lines)
	}

	w.Flush()
	if !reflect.DeepEqual(lines, []string{"partial", "second", "", "thi"}) {
		t.Errorf("lines after Flush = %q", lines)
	}
	w.Flush()
	if len(lines) != 4 {
		t.Errorf("second Flush emitted again: %q", lines)
	}
}
