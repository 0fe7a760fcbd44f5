package utils

import (
	"bufio"
	"os"
	"strings"
)

// IgnoreList holds terms for showings that must never be imported
type IgnoreList struct {
	terms []string
}

// NewIgnoreList creates an ignore list from terms, skipping blanks
func NewIgnoreList(terms ...string) *IgnoreList {
	list := &IgnoreList{}
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			list.terms = append(list.terms, term)
		}
	}
	return list
}

// LoadIgnoreList loads ignore terms from a file, one per line.
// Lines starting with # are comments.
func LoadIgnoreList(path string) (*IgnoreList, error) {
	// If file doesn't exist, return empty list
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewIgnoreList(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewIgnoreList(terms...), nil
}

// With returns a new list holding the terms of both lists
func (l *IgnoreList) With(terms ...string) *IgnoreList {
	var existing []string
	if l != nil {
		existing = l.terms
	}
	return NewIgnoreList(append(append([]string{}, existing...), terms...)...)
}

// Len returns the number of terms
func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.terms)
}

// Matches checks whether any of the values contains an ignore term.
// Returns (matched, matchedTerm)
func (l *IgnoreList) Matches(values ...string) (bool, string) {
	if l == nil {
		return false, ""
	}

	for _, value := range values {
		if value == "" {
			continue
		}
		valueLower := strings.ToLower(value)
		for _, term := range l.terms {
			if strings.Contains(valueLower, strings.ToLower(term)) {
				return true, term
			}
		}
	}

	return false, ""
}
