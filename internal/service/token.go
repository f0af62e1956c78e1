package service

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ParseToken extracts the token from an XML body: the text content of the
// first child node of the document element.
//
//	<a><b>XYZ</b></a>  ->  "XYZ"
//
// Whitespace-only text, comments and processing instructions are skipped when
// looking for that child. Any failure, including an empty token, is ErrTokenParse.
func ParseToken(body []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenParse, err)
	}
	if err := checkProlog(doc.Child); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenParse, err)
	}

	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("%w: no document element", ErrTokenParse)
	}

	child := firstNode(root.Child)
	if child == nil {
		return "", fmt.Errorf("%w: <%s> has no child node", ErrTokenParse, root.Tag)
	}

	token := strings.TrimSpace(textContent(child))
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenParse)
	}
	return token, nil
}

// checkProlog rejects documents etree reads leniently: text outside the
// document element, or more than one document element.
func checkProlog(top []etree.Token) error {
	roots := 0
	for _, c := range top {
		switch n := c.(type) {
		case *etree.Element:
			roots++
			if roots > 1 {
				return fmt.Errorf("more than one document element (<%s>)", n.Tag)
			}
		case *etree.CharData:
			if strings.TrimSpace(n.Data) != "" {
				return fmt.Errorf("text outside the document element: %q", n.Data)
			}
		}
	}
	return nil
}

func firstNode(children []etree.Token) etree.Token {
	for _, c := range children {
		switch n := c.(type) {
		case *etree.Element:
			return n
		case *etree.CharData:
			if strings.TrimSpace(n.Data) != "" {
				return n
			}
		}
	}
	return nil
}

// textContent concatenates all character data below t.
func textContent(t etree.Token) string {
	switch n := t.(type) {
	case *etree.CharData:
		return n.Data
	case *etree.Element:
		var sb strings.Builder
		for _, c := range n.Child {
			sb.WriteString(textContent(c))
		}
		return sb.String()
	default:
		return ""
	}
}
