package phone

import "testing"

func TestNormalize_Kenya(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0712345678", want: "+254712345678"},
		{in: "0112 345 678", want: "+254112345678"},
		{in: "712345678", want: "+254712345678"},
		{in: "254712345678", want: "+254712345678"},
		{in: "+254 712-345-678", want: "+254712345678"},
		{in: "00254712345678", want: "+254712345678"},
		{in: "+1 (555) 000-1111", want: "+15550001111"},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "071234567", wantErr: true},
		{in: "12345", wantErr: true},
		{in: "+0712345678", wantErr: true},
		{in: "254+712345678", wantErr: true},
		{in: "+1234567890123456", wantErr: true},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if err != ErrInvalid {
				t.Fatalf("Normalize(%q)=%q,%v want ErrInvalid", tc.in, got, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("Normalize(%q)=%q,%v want=%q", tc.in, got, err, tc.want)
		}
	}
}

func TestNormalize_EquivalentFormsAgree(t *testing.T) {
	t.Parallel()

	forms := []string{"0712345678", "712345678", "254712345678", "+254712345678", "+254 712 345 678"}
	first, err := Normalize(forms[0])
	if err != nil {
		t.Fatalf("Normalize(%q): %v", forms[0], err)
	}
	for _, f := range forms[1:] {
		got, err := Normalize(f)
		if err != nil || got != first {
			t.Fatalf("Normalize(%q)=%q,%v want=%q", f, got, err, first)
		}
	}
}

func TestNormalizer_OtherCountry(t *testing.T) {
	t.Parallel()

	n := NewNormalizer("+44", 10)
	got, err := n.Normalize("07911 123456")
	if err != nil || got != "+447911123456" {
		t.Fatalf("Normalize()=%q,%v want=+447911123456", got, err)
	}
	if n.CountryCode() != "44" {
		t.Fatalf("CountryCode()=%q want=44", n.CountryCode())
	}
}

func TestMask(t *testing.T) {
	t.Parallel()

	if got := Mask("+254712345678"); got != "+*********678" {
		t.Fatalf("Mask()=%q", got)
	}
	if got := Mask("+1"); got != "***" {
		t.Fatalf("Mask(short)=%q", got)
	}
}
