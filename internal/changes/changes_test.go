package changes

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDirectoriesTakesDistinctFirstComponents(t *testing.T) {
	files := []string{
		"clang/lib/Sema/SemaExpr.cpp",
		"llvm/include/llvm/IR/Value.h",
		"clang/test/Sema/foo.c",
		"./lld/ELF/Driver.cpp",
		"README.md",
		"",
	}
	want := []string{"clang", "llvm", "lld", "README.md"}
	if diff := cmp.Diff(want, Directories(files)); diff != "" {
		t.Fatalf("Directories mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectoriesIsDeterministic(t *testing.T) {
	files := []string{"mlir/a", "flang/b", "mlir/c"}
	first := Directories(files)
	second := Directories(files)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"mlir", "flang"}, first)
}

func TestDirectoriesEmptyInput(t *testing.T) {
	assert.Empty(t, Directories(nil))
	assert.Empty(t, Directories([]string{"", "  ", "./"}))
}

func TestParseFileListDropsBlankLines(t *testing.T) {
	raw := "clang/a.cpp\r\n\n  llvm/b.cpp  \n"
	assert.Equal(t, []string{"clang/a.cpp", "llvm/b.cpp"}, ParseFileList(raw))
	assert.Empty(t, ParseFileList(""))
}

func TestKeepModifiedIntersectsInRegistryOrder(t *testing.T) {
	projects := []string{"bolt", "clang", "llvm"}
	dirs := []string{"llvm", ".github", "clang"}
	assert.Equal(t, []string{"clang", "llvm"}, KeepModified(dirs, projects))
	assert.Equal(t, []string{".github"}, Unregistered(dirs, projects))
	assert.Nil(t, KeepModified(nil, projects))
}

func TestReviewID(t *testing.T) {
	msg := "[clang] Fix crash\n\nSome body text.\n\nReview-ID:  D12345\n"
	assert.Equal(t, "D12345", ReviewID(msg))
	assert.Equal(t, "", ReviewID("no trailer here\n"))
	assert.Equal(t, "", ReviewID("Review-ID:   \n"))
}
