package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/driver"
	"github.com/eternalApril/moonview/internal/result"
)

func printTree(w io.Writer, root *result.Node) {
	fmt.Fprint(w, root.String())
}

// printReplies prints the reply of the root, for raw commands, and of every
// command of the tree
func printReplies(w io.Writer, root *result.Node) {
	printReply(w, root)
	for _, cmd := range root.Children() {
		if cmd.Kind() == result.KindCommand {
			printReply(w, cmd)
		}
	}
}

func printReply(w io.Writer, n *result.Node) {
	if err := n.Err(); err != nil {
		fmt.Fprintf(w, "(error) %v\n", err)
		return
	}
	kids := n.Children()
	if len(kids) == 0 || kids[0].Kind() == result.KindCommand {
		return
	}
	printValue(w, kids[0].Value())
}

func printValue(w io.Writer, v core.Value) {
	switch v.Type {
	case core.TypeError:
		fmt.Fprintf(w, "(error) %s\n", v.Str)
	case core.TypeInteger:
		fmt.Fprintf(w, "(integer) %d\n", v.Integer)
	case core.TypeNull:
		fmt.Fprintln(w, "(nil)")
	case core.TypeString:
		fmt.Fprintf(w, "%q\n", v.Str)
	default:
		if v.Len() == 0 {
			fmt.Fprintln(w, "(empty)")
		}
		for i, line := range containerLines(v) {
			fmt.Fprintf(w, "%d) %s\n", i+1, line)
		}
	}
}

func containerLines(v core.Value) []string {
	var out []string
	switch v.Type {
	case core.TypeArray, core.TypeSet, core.TypeStream:
		for _, el := range v.Array {
			if el.IsContainer() {
				out = append(out, "["+el.Render(", ")+"]")
				continue
			}
			out = append(out, el.String())
		}
	case core.TypeHash:
		for _, p := range v.Hash {
			out = append(out, fmt.Sprintf("%s => %s", p.Field, p.Value))
		}
	case core.TypeZSet:
		for _, m := range v.ZSet {
			out = append(out, fmt.Sprintf("%s (%g)", m.Member, m.Score))
		}
	}
	return out
}

func printKeyValue(w io.Writer, kv *core.KeyValue) {
	if kv == nil {
		return
	}
	fmt.Fprintf(w, "key:  %s\n", kv.Key.Key())
	fmt.Fprintf(w, "type: %s\n", kv.Value.Type)
	fmt.Fprintf(w, "ttl:  %s\n", formatTTL(kv.Key))
	printValue(w, kv.Value)
}

func printPage(w io.Writer, page *driver.Page) {
	for i := range page.Keys {
		printPageKey(w, page, i, "")
	}
	printPageFooter(w, page)
}

func printPageKey(w io.Writer, page *driver.Page, i int, indent string) {
	kv := page.Keys[i]
	typ := kv.Value.Type.String()
	if page.IsMissing(i, driver.PropertyType) {
		typ = "?"
	}
	ttl := formatTTL(kv.Key)
	if page.IsMissing(i, driver.PropertyTTL) {
		ttl = "?"
	}
	fmt.Fprintf(w, "%-8s %-10s %s%s\n", typ, ttl, indent, kv.Key.Key())
}

// printNamespaces prints the page as a tree of key name prefixes
func printNamespaces(w io.Writer, page *driver.Page, sep string) {
	var walk func(ns *driver.Namespace, indent string)
	walk = func(ns *driver.Namespace, indent string) {
		for _, child := range ns.Children {
			fmt.Fprintf(w, "%-19s %s%s%s (%d)\n", "", indent, child.Name, sep, child.Size())
			walk(child, indent+"  ")
		}
		for _, i := range ns.Keys {
			printPageKey(w, page, i, indent)
		}
	}
	walk(page.Namespaces(sep), "")
	printPageFooter(w, page)
}

func printPageFooter(w io.Writer, page *driver.Page) {
	var footer []string
	footer = append(footer, fmt.Sprintf("cursor %d", page.Cursor))
	if page.Total >= 0 {
		footer = append(footer, fmt.Sprintf("%d keys in total", page.Total))
	}
	if page.Incomplete() {
		footer = append(footer, "some properties could not be loaded")
	}
	fmt.Fprintf(w, "-- %s\n", strings.Join(footer, ", "))
}

func formatTTL(key core.NKey) string {
	ttl, ok := key.TTL()
	switch {
	case !ok:
		return "?"
	case ttl == core.NoTTL:
		return "-"
	}
	return fmt.Sprintf("%ds", ttl)
}
