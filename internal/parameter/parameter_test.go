package parameter

import (
	"errors"
	"sync"
	"testing"
)

func TestDefinitions(t *testing.T) {
	cases := []struct {
		name    string
		build   func() (*Parameter, error)
		wantErr error
	}{
		{"boolean", func() (*Parameter, error) { return NewBoolean("gate", true, "", "") }, nil},
		{"empty id", func() (*Parameter, error) { return NewBoolean("", true, "", "") }, ErrInvalidValue},
		{"integer", func() (*Parameter, error) { return NewInteger("steps", 0, -20, 20, "Steps", "") }, nil},
		{"integer out of range", func() (*Parameter, error) { return NewInteger("steps", 50, 1, 20, "", "") }, ErrOutOfRange},
		{"float inverted range", func() (*Parameter, error) { return NewFloat("amt", 0, 1, -1, "", "") }, ErrInvalidValue},
		{"enum", func() (*Parameter, error) { return NewEnum("mode", "value", []string{"VALUE", "value2"}, "", "") }, nil},
		{"enum missing default", func() (*Parameter, error) { return NewEnum("mode", "x", []string{"1", "2"}, "", "") }, ErrInvalidValue},
		{"enum duplicate", func() (*Parameter, error) { return NewEnum("mode", "a", []string{"a", "b", "A"}, "", "") }, ErrInvalidValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSetValueValidation(t *testing.T) {
	p, err := NewInteger("steps", 4, 1, 16, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetValue(32); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("SetValue(32) = %v, want ErrOutOfRange", err)
	}
	if err := p.SetValue(2.5); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("SetValue(2.5) = %v, want ErrInvalidValue", err)
	}
	if p.Value() != 4 {
		t.Fatalf("rejected updates must not change the value, got %v", p.Value())
	}
	if err := p.SetValue(8); err != nil {
		t.Fatal(err)
	}
	if p.Value() != 8 {
		t.Fatalf("value = %v, want 8", p.Value())
	}
	var perr *Error
	if err := p.SetValue(-1); !errors.As(err, &perr) || perr.ID != "steps" {
		t.Fatalf("expected *Error for steps, got %v", err)
	}
}

func TestEnumValue(t *testing.T) {
	p, err := NewEnum("mode", "b", []string{"a", "b", "c"}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.EnumValue(); got != "b" {
		t.Fatalf("EnumValue = %q, want b", got)
	}
	if err := p.SetValue(2); err != nil {
		t.Fatal(err)
	}
	if got := p.EnumValue(); got != "c" {
		t.Fatalf("EnumValue = %q, want c", got)
	}
}

func TestSetCloneIsolation(t *testing.T) {
	a, _ := NewFloat("amt", 0.5, 0, 1, "", "")
	s, err := NewSet(a)
	if err != nil {
		t.Fatal(err)
	}
	c := s.Clone()
	if err := c.SetValue("amt", 0.9); err != nil {
		t.Fatal(err)
	}
	orig, _ := s.Get("amt")
	if orig.Value() != 0.5 {
		t.Fatalf("clone update leaked into original: %v", orig.Value())
	}
	if err := s.SetValue("nope", 1); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("unknown id error = %v", err)
	}
	if _, err := NewSet(a, a); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate ids should be rejected, got %v", err)
	}
}

func TestConcurrentHostWrites(t *testing.T) {
	p, _ := NewFloat("amt", 0, 0, 1, "", "")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = p.SetValue(float64(i%2))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if v := p.Value(); v != 0 && v != 1 {
				t.Errorf("torn read %v", v)
				return
			}
		}
	}()
	wg.Wait()
}
