package store

import (
	"math"
	"testing"
)

func TestIs(t *testing.T) {
	slice := []int{1, 2}
	m := map[string]int{"a": 1}
	p := &struct{ X int }{1}

	type point struct{ X, Y int }
	type withSlice struct{ Items []int }
	type nested struct {
		Label string
		Inner withSlice
		Any   any
	}
	fn := func() {}

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"ints equal", Is(1, 1), true},
		{"ints differ", Is(1, 2), false},
		{"strings", Is("a", "a"), true},
		{"NaN", Is(math.NaN(), math.NaN()), true},
		{"float32 NaN", Is(float32(math.NaN()), float32(math.NaN())), true},
		{"same slice", Is(slice, slice), true},
		{"equal but distinct slices", Is([]int{1, 2}, []int{1, 2}), false},
		{"same map", Is(m, m), true},
		{"distinct maps", Is(map[string]int{"a": 1}, map[string]int{"a": 1}), false},
		{"same pointer", Is(p, p), true},
		{"distinct pointers", Is(&struct{ X int }{1}, &struct{ X int }{1}), false},
		{"comparable structs", Is(point{1, 2}, point{1, 2}), true},
		{"structs sharing a slice", Is(withSlice{Items: slice}, withSlice{Items: slice}), true},
		{"structs with distinct slices", Is(withSlice{Items: []int{1, 2}}, withSlice{Items: []int{1, 2}}), false},
		{"nested structs", Is(nested{"a", withSlice{slice}, m}, nested{"a", withSlice{slice}, m}), true},
		{"nested scalar differs", Is(nested{"a", withSlice{slice}, m}, nested{"b", withSlice{slice}, m}), false},
		{"struct holding same func", Is(struct{ F func() }{fn}, struct{ F func() }{fn}), true},
		{"arrays of slices", Is([2][]int{slice, slice}, [2][]int{slice, slice}), true},
		{"arrays of distinct slices", Is([1][]int{{1}}, [1][]int{{1}}), false},
		{"nil interfaces", Is[any](nil, nil), true},
		{"nil vs value", Is[any](nil, 1), false},
		{"mixed dynamic types", Is[any](1, "1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestShallowEqual(t *testing.T) {
	type node struct{ n int }
	a, b := &node{1}, &node{2}

	if !ShallowEqual([]*node{a, b}, []*node{a, b}) {
		t.Error("slices of the same pointers should be shallow-equal")
	}
	if ShallowEqual([]*node{a}, []*node{b}) {
		t.Error("slices of different pointers should differ")
	}
	if !ShallowEqual(map[string]int{"x": 1}, map[string]int{"x": 1}) {
		t.Error("maps with equal values should be shallow-equal")
	}
	if ShallowEqual(map[string]int{"x": 1}, map[string]int{"y": 1}) {
		t.Error("maps with different keys should differ")
	}
}

func TestHashEqual(t *testing.T) {
	type doc struct {
		Title string
		Tags  []string
	}
	if !HashEqual(doc{"a", []string{"x"}}, doc{"a", []string{"x"}}) {
		t.Error("identical documents should hash-equal")
	}
	if HashEqual(doc{"a", nil}, doc{"b", nil}) {
		t.Error("different documents should not hash-equal")
	}
	if HashEqual(make(chan int), make(chan int)) {
		t.Error("unencodable values fall back to DeepEqual, distinct channels differ")
	}
}
