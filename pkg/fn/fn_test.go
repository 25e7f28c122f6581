package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
)

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
	if e.Error() == nil || e.Error().Error() != "fail" {
		t.Fatalf("unexpected error: %v", e.Error())
	}
}

func TestErrf(t *testing.T) {
	_, err := Errf[string]("code %d", 404).Unwrap()
	if err == nil || err.Error() != "code 404" {
		t.Fatal("Errf wrong message")
	}
}

func TestOrElse(t *testing.T) {
	var seen error
	r := Err[int](errors.New("first")).OrElse(func(err error) Result[int] {
		seen = err
		return Ok(7)
	})
	if v, _ := r.Unwrap(); v != 7 || seen == nil || seen.Error() != "first" {
		t.Fatalf("OrElse fallback wrong: v=%d seen=%v", v, seen)
	}

	called := false
	Ok(1).OrElse(func(error) Result[int] {
		called = true
		return Ok(2)
	})
	if called {
		t.Fatal("OrElse on Ok should not run f")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(5), func(v int) string { return strconv.Itoa(v) })
	if v, _ := r.Unwrap(); v != "5" {
		t.Fatal("MapResult failed")
	}
	e := MapResult(Err[int](errors.New("boom")), func(v int) string { return "x" })
	if _, err := e.Unwrap(); err == nil || err.Error() != "boom" {
		t.Fatal("error should propagate through MapResult")
	}
}

func TestFromPair(t *testing.T) {
	if v, _ := FromPair(strconv.Atoi("42")).Unwrap(); v != 42 {
		t.Fatal("FromPair failed")
	}
	if FromPair(strconv.Atoi("nope")).IsOk() {
		t.Fatal("FromPair should fail")
	}
}

func TestTracedStagePassesThrough(t *testing.T) {
	s := TracedStage("test.stage", Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v + 1) }))
	if v, _ := s(context.Background(), 1).Unwrap(); v != 2 {
		t.Fatal("TracedStage should return inner result")
	}
	f := TracedStage("test.fail", Stage[int, int](func(_ context.Context, _ int) Result[int] { return Errf[int]("nope") }))
	if f(context.Background(), 1).IsOk() {
		t.Fatal("TracedStage should keep the error")
	}
}

func TestParMapResultOrderAndBound(t *testing.T) {
	var active, peak atomic.Int32
	out := ParMapResult([]int{1, 2, 3, 4, 5}, 2, func(v int) Result[int] {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer active.Add(-1)
		if v == 3 {
			return Err[int](errors.New("three"))
		}
		return Ok(v * 10)
	})
	if len(out) != 5 {
		t.Fatalf("expected 5 results, got %d", len(out))
	}
	if v, _ := out[0].Unwrap(); v != 10 {
		t.Fatalf("order broken: %d", v)
	}
	if out[2].IsOk() {
		t.Fatal("third result should be an error")
	}
	if peak.Load() > 2 {
		t.Fatalf("concurrency exceeded bound: %d", peak.Load())
	}
}

func TestParMapResultEmpty(t *testing.T) {
	if out := ParMapResult([]int{}, 4, func(v int) Result[int] { return Ok(v) }); len(out) != 0 {
		t.Fatal("expected empty")
	}
}
