package checksum

import "testing"

func TestSum(t *testing.T) {
	// SHA-256 of the empty input.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != want {
		t.Errorf("Sum(nil) = %s", got)
	}
}

func TestETag(t *testing.T) {
	a, err := ETag(map[string]string{"summary": "one"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ETag(map[string]string{"summary": "one"})
	c, _ := ETag(map[string]string{"summary": "two"})
	if a != b {
		t.Errorf("same content, different tags: %s %s", a, b)
	}
	if a == c {
		t.Error("different content, same tag")
	}
	if len(a) != 34 || a[0] != '"' || a[33] != '"' {
		t.Errorf("malformed tag %s", a)
	}
}

func TestETag_Unencodable(t *testing.T) {
	if _, err := ETag(make(chan int)); err == nil {
		t.Error("expected error")
	}
}
