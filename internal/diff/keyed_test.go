package diff

import (
	"reflect"
	"testing"

	"github.com/caldermaw/graft/internal/models"
)

func TestCollectionMembership(t *testing.T) {
	old := []models.File{
		{PresetID: "video_high_res", Checksum: "aaa"},
		{PresetID: "video_subtitle", Checksum: "bbb"},
	}
	updated := []models.File{
		{PresetID: "video_high_res", Checksum: "aaa"},
		{PresetID: "video_thumbnail", Checksum: "ccc"},
	}

	d := Collection("preset_id", old, updated)
	if len(d.New) != 1 || d.New[0]["preset_id"] != "video_thumbnail" {
		t.Errorf("new = %v", d.New)
	}
	if len(d.Deleted) != 1 || d.Deleted[0]["preset_id"] != "video_subtitle" {
		t.Errorf("deleted = %v", d.Deleted)
	}
	if len(d.Modified) != 0 {
		t.Errorf("modified = %v", d.Modified)
	}
}

func TestCollectionModifiedCarriesOnlyChanges(t *testing.T) {
	old := []models.File{{PresetID: "video_high_res", Checksum: "aaa", FileFormat: "mp4"}}
	updated := []models.File{{PresetID: "video_high_res", Checksum: "zzz", FileFormat: "mp4"}}

	d := Collection("preset_id", old, updated)
	if len(d.Modified) != 1 {
		t.Fatalf("modified = %v", d.Modified)
	}
	want := map[string]any{"checksum": "zzz", "preset_id": "video_high_res"}
	if !reflect.DeepEqual(d.Modified[0], want) {
		t.Errorf("entry = %v, want %v", d.Modified[0], want)
	}
	if !Collection("preset_id", old, old).Empty() {
		t.Error("identical collections should diff empty")
	}
}

func TestTagsSetDiff(t *testing.T) {
	d := Tags([]string{"math", "grade-3"}, []string{"math", "science", "algebra"})
	if !reflect.DeepEqual(d.New, []string{"algebra", "science"}) {
		t.Errorf("new = %v", d.New)
	}
	if !reflect.DeepEqual(d.Deleted, []string{"grade-3"}) {
		t.Errorf("deleted = %v", d.Deleted)
	}
	if !Tags(nil, nil).Empty() {
		t.Error("empty sets should diff empty")
	}
}
