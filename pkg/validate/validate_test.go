package validate

import "testing"

type sample struct {
	Username string `json:"username" binding:"required,username"`
	Content  string `json:"content" binding:"max=5"`
}

func TestStructUsesJSONNames(t *testing.T) {
	detail := Struct(&sample{Username: "a!", Content: "toolong"})
	if detail == nil {
		t.Fatalf("expected validation errors")
	}
	if _, ok := detail["username"]; !ok {
		t.Fatalf("missing username detail: %v", detail)
	}
	if _, ok := detail["content"]; !ok {
		t.Fatalf("missing content detail: %v", detail)
	}
}

func TestStructPasses(t *testing.T) {
	if detail := Struct(&sample{Username: "alice_01", Content: "hi"}); detail != nil {
		t.Fatalf("unexpected detail: %v", detail)
	}
}

func TestInitTransZh(t *testing.T) {
	if err := InitTrans("zh"); err != nil {
		t.Fatalf("InitTrans: %v", err)
	}
	defer func() { _ = InitTrans("en") }()
	detail := Struct(&sample{})
	if detail["username"] == "" {
		t.Fatalf("expected translated required message, got %v", detail)
	}
}
