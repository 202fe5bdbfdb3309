package binding

import "testing"

func TestBoolCodecDefaults(t *testing.T) {
	c := NewBoolCodec("", "", "")
	if c.Checked != "1" || c.NotChecked != "0" {
		t.Errorf("encodings = %q/%q, want 1/0", c.Checked, c.NotChecked)
	}
	if c.Mode != DecodeExact {
		t.Errorf("Mode = %q, want exact", c.Mode)
	}
}

func TestBoolCodecRoundTrip(t *testing.T) {
	encodings := [][2]string{
		{"1", "0"},
		{"255", "0"},
		{"Y", "N"},
		{"enabled", "disabled"},
	}
	for _, enc := range encodings {
		c := NewBoolCodec(enc[0], enc[1], DecodeExact)
		for _, want := range []bool{true, false} {
			got, ok := c.Decode(c.Encode(Toggle(want)))
			if !ok {
				t.Fatalf("%v: Decode reported no value", enc)
			}
			if got.Checked != want {
				t.Errorf("%v: round trip of %v = %v", enc, want, got.Checked)
			}
		}
	}
}

func TestBoolCodecDecode(t *testing.T) {
	tests := []struct {
		name string
		mode DecodeMode
		raw  string
		want bool
	}{
		{"exact match", DecodeExact, "1", true},
		{"exact other", DecodeExact, "0", false},
		{"exact unknown", DecodeExact, "2", false},
		{"exact uses first line only", DecodeExact, "1\n0\n", true},
		{"exact rejects substring", DecodeExact, "[1] 0", false},
		{"contains substring", DecodeContains, "[1] 0", true},
		{"contains missing", DecodeContains, "[0]", false},
		{"exact crlf", DecodeExact, "1\r\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBoolCodec("1", "0", tt.mode)
			got, ok := c.Decode(tt.raw)
			if !ok {
				t.Fatal("Decode reported no value")
			}
			if got.Checked != tt.want {
				t.Errorf("Decode(%q) = %v, want %v", tt.raw, got.Checked, tt.want)
			}
		})
	}
}

func TestListCodec(t *testing.T) {
	var c ListCodec
	if got := c.Encode(Option("performance")); got != "performance" {
		t.Errorf("Encode = %q, want performance", got)
	}
	v, ok := c.Decode("ondemand\n")
	if !ok || v.Option != "ondemand" {
		t.Errorf("Decode = %q,%v, want ondemand,true", v.Option, ok)
	}
	if _, ok := c.Decode(""); ok {
		t.Error("Decode(\"\") reported a value")
	}
}

func TestParseToggle(t *testing.T) {
	for _, s := range []string{"true", "1", "on", "YES", "enabled"} {
		if v, err := ParseToggle(s); err != nil || !v {
			t.Errorf("ParseToggle(%q) = %v, %v", s, v, err)
		}
	}
	for _, s := range []string{"false", "0", "off", "no", "Disabled"} {
		if v, err := ParseToggle(s); err != nil || v {
			t.Errorf("ParseToggle(%q) = %v, %v", s, v, err)
		}
	}
	if _, err := ParseToggle("maybe"); err == nil {
		t.Error("ParseToggle(maybe) succeeded")
	}
}

func TestParseKindAndMode(t *testing.T) {
	if k, err := ParseKind(""); err != nil || k != KindToggle {
		t.Errorf("ParseKind(\"\") = %q, %v", k, err)
	}
	if k, err := ParseKind("List"); err != nil || k != KindList {
		t.Errorf("ParseKind(List) = %q, %v", k, err)
	}
	if _, err := ParseKind("slider"); err == nil {
		t.Error("ParseKind(slider) succeeded")
	}
	if m, err := ParseDecodeMode("contains"); err != nil || m != DecodeContains {
		t.Errorf("ParseDecodeMode(contains) = %q, %v", m, err)
	}
	if _, err := ParseDecodeMode("regex"); err == nil {
		t.Error("ParseDecodeMode(regex) succeeded")
	}
}
