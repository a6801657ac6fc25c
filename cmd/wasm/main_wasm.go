//go:build js && wasm

// Command wasm exposes the page rules of the editor to the browser so the
// frontend counts characters and renders markdown exactly like the API.
package main

import (
	"fmt"
	"syscall/js"
	"time"

	"github.com/jun/dijitalmektup/internal/compose"
	"github.com/jun/dijitalmektup/internal/editor"
	"github.com/jun/dijitalmektup/internal/markup"
)

func main() {
	renderer := markup.NewRenderer()
	ceiling := editor.CharCeiling{Limit: editor.DefaultCharLimit}

	// format: renderMarkdown(sourceString) -> htmlString
	renderFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 1 {
			return "Error: Invalid number of arguments"
		}
		htmlBytes, err := renderer.Render([]byte(args[0].String()))
		if err != nil {
			return "Error: " + err.Error()
		}
		return string(htmlBytes)
	})

	// format: checkConflict(localRevision, remoteRevision string) -> bool
	checkConflictFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 2 {
			return false
		}
		return compose.CheckConflict(args[0].String(), args[1].String())
	})

	// format: pageStatus(html) -> {chars, limit, overflows, blank}
	pageStatusFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 1 {
			return nil
		}
		html := args[0].String()

		obj := js.Global().Get("Object").New()
		obj.Set("chars", markup.CharCount(html))
		obj.Set("limit", ceiling.Limit)
		obj.Set("overflows", ceiling.Overflows(html))
		obj.Set("blank", markup.IsBlank(html))
		return obj
	})

	// format: createPendingSave(revision string, page int, html string) -> object
	// The frontend replays these as PUT /draft/pages/{page} with If-Match.
	createPendingSaveFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 3 {
			return nil
		}
		obj := js.Global().Get("Object").New()
		obj.Set("revision", args[0].String())
		obj.Set("page", args[1].Int())
		obj.Set("html", markup.Canonicalize(args[2].String()))
		obj.Set("timestamp", time.Now().UnixMilli())
		return obj
	})

	js.Global().Set("renderMarkdown", renderFunc)
	js.Global().Set("checkConflict", checkConflictFunc)
	js.Global().Set("pageStatus", pageStatusFunc)
	js.Global().Set("createPendingSave", createPendingSaveFunc)

	fmt.Println("Dijital Mektup Wasm Initialized")

	// Prevent the function from returning, which would exit the Wasm module
	select {}
}
