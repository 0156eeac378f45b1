package catalog

import (
	"reflect"
	"testing"
)

func TestBuildProjectionDefault(t *testing.T) {
	for _, fields := range [][]string{nil, {}, {"bogus"}, {"color", "price"}} {
		p := BuildProjection(fields)
		want := []string{colCarID, colYear, colMakeName, colModelName}
		if !reflect.DeepEqual(p.Columns, want) {
			t.Fatalf("fields=%v: columns = %v, want %v", fields, p.Columns, want)
		}
		if !p.HasCarID {
			t.Fatalf("fields=%v: default projection must select cars.id", fields)
		}
		if p.Distinct {
			t.Fatalf("fields=%v: default projection must not be distinct", fields)
		}
	}
}

func TestBuildProjectionAliases(t *testing.T) {
	a := BuildProjection([]string{"make_name", "model_name"})
	b := BuildProjection([]string{"make", "model"})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("aliases should normalize: %+v vs %+v", a, b)
	}
}

func TestBuildProjectionCarAbsorbsYear(t *testing.T) {
	p := BuildProjection([]string{"car", "year"})
	want := []string{colCarID, colYear}
	if !reflect.DeepEqual(p.Columns, want) {
		t.Fatalf("columns = %v, want %v", p.Columns, want)
	}
	if !p.HasCarID {
		t.Fatal("car projection must select cars.id")
	}
}

func TestBuildProjectionSingleColumnDistinct(t *testing.T) {
	for _, f := range []string{"make", "model", "year"} {
		p := BuildProjection([]string{f})
		if len(p.Columns) != 1 {
			t.Fatalf("field %q: columns = %v", f, p.Columns)
		}
		if !p.Distinct {
			t.Fatalf("field %q: single column must be distinct", f)
		}
		if p.HasCarID {
			t.Fatalf("field %q: must not claim cars.id", f)
		}
	}
}

func TestBuildProjectionDedup(t *testing.T) {
	p := BuildProjection([]string{"make", "make", "make_name"})
	if len(p.Columns) != 1 {
		t.Fatalf("columns = %v, want single make column", p.Columns)
	}
	if !p.Distinct {
		t.Fatal("deduped single column must be distinct")
	}
}
