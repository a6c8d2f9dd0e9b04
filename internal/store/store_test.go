package store

import (
	"context"
	"errors"
	"testing"
)

type recordingDriver struct {
	urls []string
}

func (d *recordingDriver) Connect(ctx context.Context, url string, opts Options) (Conn, error) {
	d.urls = append(d.urls, url)
	return nil, nil
}

func TestSchemes(t *testing.T) {
	sqlite := &recordingDriver{}
	pg := &recordingDriver{}
	s := Schemes{"sqlite": sqlite, "postgres": pg}

	tests := []struct {
		name    string
		url     string
		want    *recordingDriver
		wantErr bool
	}{
		{name: "sqlite path", url: "sqlite:/tmp/a.db", want: sqlite},
		{name: "upper case scheme", url: "SQLITE:/tmp/b.db", want: sqlite},
		{name: "postgres", url: "postgres://localhost/db", want: pg},
		{name: "unknown scheme", url: "mysql://localhost/db", wantErr: true},
		{name: "no scheme", url: "/tmp/a.db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := 0
			if tt.want != nil {
				before = len(tt.want.urls)
			}
			_, err := s.Connect(context.Background(), tt.url, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownScheme) {
					t.Errorf("expected ErrUnknownScheme, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tt.want.urls) != before+1 || tt.want.urls[before] != tt.url {
				t.Errorf("driver did not receive %q: %v", tt.url, tt.want.urls)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	o := Options{
		"max_connections": 7,
		"from_yaml":       float64(3),
		"fraction":        1.5,
		"temp":            true,
		"name":            "app",
	}

	if n, ok, err := o.Int("max_connections"); err != nil || !ok || n != 7 {
		t.Errorf("Int(max_connections) = %d, %v, %v", n, ok, err)
	}
	if n, ok, err := o.Int("from_yaml"); err != nil || !ok || n != 3 {
		t.Errorf("Int(from_yaml) = %d, %v, %v", n, ok, err)
	}
	if _, ok, err := o.Int("fraction"); err == nil || !ok {
		t.Errorf("Int(fraction) expected error, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := o.Int("missing"); ok || err != nil {
		t.Errorf("Int(missing) = ok=%v err=%v", ok, err)
	}
	if b, err := o.Bool("temp"); err != nil || !b {
		t.Errorf("Bool(temp) = %v, %v", b, err)
	}
	if _, err := o.Bool("name"); err == nil {
		t.Error("Bool(name) expected error")
	}
	if s, err := o.String("name"); err != nil || s != "app" {
		t.Errorf("String(name) = %q, %v", s, err)
	}

	unknown := o.Unknown("max_connections", "temp", "name")
	if len(unknown) != 2 || unknown[0] != "fraction" || unknown[1] != "from_yaml" {
		t.Errorf("Unknown() = %v", unknown)
	}
}

func TestValidIdentifier(t *testing.T) {
	valid := []string{"store_rates_000001", "hotel_id", "_x", "a1"}
	invalid := []string{"", "Rates", "1abc", "drop table", `a"b`, "a-b"}
	for _, name := range valid {
		if !ValidIdentifier(name) {
			t.Errorf("ValidIdentifier(%q) = false", name)
		}
	}
	for _, name := range invalid {
		if ValidIdentifier(name) {
			t.Errorf("ValidIdentifier(%q) = true", name)
		}
	}
}

func TestQuote(t *testing.T) {
	if got := Quote("store_rates_000000"); got != `"store_rates_000000"` {
		t.Errorf("Quote = %s", got)
	}
	if got := Quote(`a"b`); got != `"a""b"` {
		t.Errorf("Quote = %s", got)
	}
}
