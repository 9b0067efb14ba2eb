package agent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnknownInsert is returned for an insert action the agent does not
// implement.
var ErrUnknownInsert = errors.New("unknown insert action")

const tableSkeleton = "| Column | Column |\n| --- | --- |\n|  |  |\n"

// Expand returns the text that replaces selection for the insert action
// name. tag selects the casing rules for the case conversions.
func Expand(name, selection string, tag language.Tag) (string, error) {
	if level, ok := strings.CutPrefix(name, "heading"); ok {
		n, err := strconv.Atoi(level)
		if err != nil || n < 1 || n > 6 {
			return "", fmt.Errorf("%w: %q", ErrUnknownInsert, name)
		}
		return strings.Repeat("#", n) + " " + selection, nil
	}

	switch name {
	case "bold":
		return "**" + selection + "**", nil
	case "italic":
		return "*" + selection + "*", nil
	case "strike":
		return "~~" + selection + "~~", nil
	case "inlineCode":
		return "`" + selection + "`", nil
	case "list":
		return "- " + selection, nil
	case "orderedList":
		return "1. " + selection, nil
	case "taskList":
		return "- [ ] " + selection, nil
	case "quote":
		return "> " + selection, nil
	case "link":
		return "[" + selection + "]()", nil
	case "image":
		return "![" + selection + "]()", nil
	case "codeBlock":
		return "```\n" + selection + "\n```\n", nil
	case "table":
		return selection + "\n" + tableSkeleton, nil
	case "rule":
		return selection + "\n---\n", nil
	case "upper":
		return cases.Upper(tag).String(selection), nil
	case "lower":
		return cases.Lower(tag).String(selection), nil
	case "title":
		return cases.Title(tag).String(selection), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInsert, name)
}

// caseConversion reports whether name only transforms the selection.
func caseConversion(name string) bool {
	return name == "upper" || name == "lower" || name == "title"
}

// Editor UI languages, in matcher preference order. The first is the
// fallback.
var (
	editorLangs = []string{"en_US", "de_DE", "es_ES", "fr_FR", "ja_JP", "ko_KR", "pt_BR", "ru_RU", "sv_SE", "zh_CN", "zh_TW"}
	langTags    = []language.Tag{
		language.AmericanEnglish,
		language.German,
		language.Spanish,
		language.French,
		language.Japanese,
		language.Korean,
		language.BrazilianPortuguese,
		language.Russian,
		language.Swedish,
		language.SimplifiedChinese,
		language.TraditionalChinese,
	}
	langMatcher = language.NewMatcher(langTags)
)

// EditorLang maps a host display language such as "zh-cn" to the editor's
// language name. Unsupported or malformed languages yield "en_US".
func EditorLang(hostLang string) string {
	tag, err := language.Parse(hostLang)
	if err != nil {
		return editorLangs[0]
	}
	_, idx, conf := langMatcher.Match(tag)
	if conf == language.No {
		return editorLangs[0]
	}
	return editorLangs[idx]
}
