package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/sourcegraph/go-diff/diff"
)

// DiffPlaceholder stands in for hunks a backend does not expose.
const DiffPlaceholder = "@@ content not available from provider @@"

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// FileDiffSource describes one changed file for diff synthesis. Fragment holds
// the hunk text the backend supplied, if any.
type FileDiffSource struct {
	OldPath  string
	NewPath  string
	Status   domain.FileStatus
	Fragment string
}

// SynthesizeFileDiff renders git-style headers for a change and appends the
// supplied fragment, or DiffPlaceholder when there is none.
func SynthesizeFileDiff(src FileDiffSource) (string, error) {
	oldPath, newPath := src.OldPath, src.NewPath
	if oldPath == "" {
		oldPath = newPath
	}
	if newPath == "" {
		newPath = oldPath
	}

	fd := &diff.FileDiff{
		OrigName: "a/" + oldPath,
		NewName:  "b/" + newPath,
		Extended: []string{fmt.Sprintf("diff --git a/%s b/%s", oldPath, newPath)},
		Hunks:    []*diff.Hunk{},
	}

	switch src.Status {
	case domain.FileStatusAdded:
		fd.OrigName = "/dev/null"
		fd.Extended = append(fd.Extended, "new file mode 100644")
	case domain.FileStatusRemoved:
		fd.NewName = "/dev/null"
		fd.Extended = append(fd.Extended, "deleted file mode 100644")
	case domain.FileStatusRenamed:
		fd.Extended = append(fd.Extended, "rename from "+oldPath, "rename to "+newPath)
	}

	fragment := src.Fragment
	var rawFragment string
	if strings.TrimSpace(fragment) != "" {
		if !strings.HasSuffix(fragment, "\n") {
			fragment += "\n"
		}
		hunks, err := diff.ParseHunks([]byte(fragment))
		if err == nil && len(hunks) > 0 {
			fd.Hunks = hunks
		} else {
			rawFragment = fragment
		}
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("failed to render diff for %s: %w", newPath, err)
	}

	text := string(out)
	switch {
	case rawFragment != "":
		text += rawFragment
	case len(fd.Hunks) == 0:
		text += DiffPlaceholder + "\n"
	}
	return text, nil
}

// JoinFileDiffs synthesizes every source and concatenates the results.
func JoinFileDiffs(sources []FileDiffSource) (string, error) {
	var b strings.Builder
	for _, src := range sources {
		text, err := SynthesizeFileDiff(src)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func ParseUnifiedDiff(diffText string) *domain.Diff {
	lines := strings.Split(diffText, "\n")
	files := []domain.DiffFile{}
	var currentFile *domain.DiffFile
	var currentHunk *domain.DiffHunk
	oldLine, newLine := 0, 0

	flushHunk := func() {
		if currentFile != nil && currentHunk != nil {
			currentFile.Hunks = append(currentFile.Hunks, *currentHunk)
		}
		currentHunk = nil
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			flushHunk()
			if currentFile != nil {
				files = append(files, *currentFile)
			}
			currentFile = &domain.DiffFile{Hunks: []domain.DiffHunk{}}
		case currentHunk == nil && strings.HasPrefix(line, "--- "):
			if currentFile != nil {
				path := strings.TrimPrefix(line, "--- ")
				if path != "/dev/null" {
					currentFile.OldPath = strings.TrimPrefix(path, "a/")
				} else {
					currentFile.IsNew = true
				}
			}
		case currentHunk == nil && strings.HasPrefix(line, "+++ "):
			if currentFile != nil {
				path := strings.TrimPrefix(line, "+++ ")
				if path != "/dev/null" {
					currentFile.NewPath = strings.TrimPrefix(path, "b/")
				} else {
					currentFile.IsDeleted = true
				}
			}
		case strings.HasPrefix(line, "@@"):
			flushHunk()
			currentHunk = &domain.DiffHunk{Header: line, Lines: []domain.DiffLine{}}
			matches := hunkHeaderRegex.FindStringSubmatch(line)
			if len(matches) >= 3 {
				oldLine, _ = strconv.Atoi(matches[1])
				newLine, _ = strconv.Atoi(matches[2])
			}
		case currentHunk != nil:
			diffLine := domain.DiffLine{Content: line}
			switch {
			case strings.HasPrefix(line, "+"):
				diffLine.Type = "add"
				diffLine.NewLine = newLine
				newLine++
			case strings.HasPrefix(line, "-"):
				diffLine.Type = "delete"
				diffLine.OldLine = oldLine
				oldLine++
			case strings.HasPrefix(line, `\`):
				diffLine.Type = "meta"
			case line != "":
				diffLine.Type = "context"
				diffLine.OldLine = oldLine
				diffLine.NewLine = newLine
				oldLine++
				newLine++
			}
			if diffLine.Type != "" {
				currentHunk.Lines = append(currentHunk.Lines, diffLine)
			}
		}
	}

	flushHunk()
	if currentFile != nil {
		files = append(files, *currentFile)
	}

	return &domain.Diff{Files: files}
}
