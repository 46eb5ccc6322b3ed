package rangeh

import "testing"

func TestParse_SimpleRange(t *testing.T) {
	r := Parse("bytes=0-499", 1000)
	if !r.Satisfiable {
		t.Fatal("expected satisfiable range")
	}
	if r.Range.Start != 0 || r.Range.End != 499 {
		t.Fatalf("unexpected range: %+v", r.Range)
	}
	if r.Range.Len() != 500 {
		t.Fatalf("expected length 500, got %d", r.Range.Len())
	}
}

func TestParse_OpenEndedRange(t *testing.T) {
	r := Parse("bytes=900-", 1000)
	if !r.Satisfiable {
		t.Fatal("expected satisfiable range")
	}
	if r.Range.Start != 900 || r.Range.End != 999 {
		t.Fatalf("unexpected range: %+v", r.Range)
	}
}

func TestParse_SuffixRange(t *testing.T) {
	r := Parse("bytes=-100", 1000)
	if !r.Satisfiable {
		t.Fatal("expected satisfiable range")
	}
	if r.Range.Start != 900 || r.Range.End != 999 {
		t.Fatalf("unexpected range: %+v", r.Range)
	}
}

func TestParse_SuffixRangeLargerThanTotal_Clamps(t *testing.T) {
	r := Parse("bytes=-5000", 1000)
	if !r.Satisfiable {
		t.Fatal("expected satisfiable range")
	}
	if r.Range.Start != 0 || r.Range.End != 999 {
		t.Fatalf("unexpected range: %+v", r.Range)
	}
}

func TestParse_EndBeyondTotal_Clamps(t *testing.T) {
	r := Parse("bytes=0-999999", 1000)
	if !r.Satisfiable {
		t.Fatal("expected satisfiable range")
	}
	if r.Range.End != 999 {
		t.Fatalf("expected end clamped to 999, got %d", r.Range.End)
	}
}

func TestParse_StartBeyondTotal_Unsatisfiable(t *testing.T) {
	r := Parse("bytes=5000-6000", 1000)
	if r.Satisfiable {
		t.Fatal("expected unsatisfiable range for out-of-bounds start")
	}
}

func TestParse_NoRangeHeader_Unsatisfiable(t *testing.T) {
	r := Parse("", 1000)
	if r.Satisfiable {
		t.Fatal("expected unsatisfiable for empty header")
	}
}

func TestParse_MalformedHeader_Unsatisfiable(t *testing.T) {
	for _, h := range []string{"garbage", "bytes=", "bytes=abc-def", "bytes=500-100"} {
		if Parse(h, 1000).Satisfiable {
			t.Fatalf("expected %q to be unsatisfiable", h)
		}
	}
}

func TestParse_MultiRange_TreatedAsUnsatisfiable(t *testing.T) {
	r := Parse("bytes=0-99,200-299", 1000)
	if r.Satisfiable {
		t.Fatal("expected multi-range request to fall back to full body")
	}
}

func TestContentRange_Format(t *testing.T) {
	r := Range{Start: 0, End: 499}
	got := r.ContentRange(1000)
	want := "bytes 0-499/1000"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
