//go:build js && wasm

// Command paperless-wasm runs the editor engine in the browser. It installs a global "paperless"
// object whose functions take and return JSON strings; failures come back as {error, code}.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"syscall/js"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/editor"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/imaging"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/logging"
	"go.uber.org/zap"
)

const globalName = "paperless"

var errNotConfigured = errors.New("call configure before opening sessions")

type configureOptions struct {
	UserID      string `json:"uid"`
	Email       string `json:"email"`
	Admin       bool   `json:"admin"`
	ShareOrigin string `json:"shareOrigin"`
	LogLevel    string `json:"logLevel"`
}

type openOptions struct {
	Profile  string              `json:"profile"`
	Document *documents.Document `json:"document,omitempty"`
	Template *documents.Document `json:"template,omitempty"`
}

type saveOptions struct {
	EventData  documents.EventData  `json:"eventData"`
	Visibility documents.Visibility `json:"visibility"`
}

type placedImage struct {
	Result    imaging.Result `json:"result"`
	ElementID string         `json:"elementId"`
	View      editor.View    `json:"view"`
}

// host owns the single-user state of the page.
type host struct {
	principal   auth.Principal
	shareOrigin string
	persister   *jsPersister
	registry    *editor.Registry
	logger      *zap.Logger
}

func main() {
	h := &host{logger: zap.NewNop()}
	api := js.Global().Get("Object").New()
	api.Set("configure", js.FuncOf(h.configure))
	api.Set("openSession", js.FuncOf(h.openSession))
	api.Set("apply", js.FuncOf(h.apply))
	api.Set("view", js.FuncOf(h.view))
	api.Set("acquireURL", js.FuncOf(h.acquireURL))
	api.Set("acquireFile", js.FuncOf(h.acquireFile))
	api.Set("save", js.FuncOf(h.save))
	api.Set("cancel", js.FuncOf(h.cancel))
	api.Set("close", js.FuncOf(h.close))
	js.Global().Set(globalName, api)
	select {}
}

// configure(optionsJSON, persist) sets the signed-in user. persist(documentJSON) must return a
// Promise resolving to the saved document JSON.
func (h *host) configure(_ js.Value, args []js.Value) any {
	var options configureOptions
	if err := decodeArg(args, 0, &options); err != nil {
		return failure(err)
	}
	level := options.LogLevel
	if level == "" {
		level = "warn"
	}
	if logger, err := logging.NewLogger(level, "console"); err == nil {
		h.logger = logger
	}
	h.principal = auth.Principal{UID: options.UserID, Email: options.Email, Admin: options.Admin}
	h.shareOrigin = options.ShareOrigin
	if len(args) > 1 && args[1].Type() == js.TypeFunction {
		h.persister = &jsPersister{persist: args[1]}
	}
	if h.registry == nil {
		h.registry = editor.NewRegistry(editor.RegistryConfig{Logger: h.logger})
	}
	return success(h.principal)
}

func (h *host) openSession(_ js.Value, args []js.Value) any {
	if h.registry == nil || h.persister == nil {
		return failure(apperr.New("wasm.open_session", "not_configured", apperr.ErrValidation, errNotConfigured))
	}
	var options openOptions
	if err := decodeArg(args, 0, &options); err != nil {
		return failure(err)
	}
	session, err := h.registry.Create(editor.SessionConfig{
		Profile:     editor.Profile(options.Profile),
		Principal:   h.principal,
		Document:    options.Document,
		Template:    options.Template,
		Persister:   h.persister,
		ShareOrigin: h.shareOrigin,
	})
	if err != nil {
		return failure(err)
	}
	return success(session.View())
}

func (h *host) apply(_ js.Value, args []js.Value) any {
	session, err := h.session(args)
	if err != nil {
		return failure(err)
	}
	var cmd editor.Command
	if err := decodeArg(args, 1, &cmd); err != nil {
		return failure(err)
	}
	result, err := session.Apply(cmd)
	if err != nil {
		return failure(err)
	}
	return success(result)
}

func (h *host) view(_ js.Value, args []js.Value) any {
	session, err := h.session(args)
	if err != nil {
		return failure(err)
	}
	return success(session.View())
}

// acquireURL(sessionID, url, confirmed)
func (h *host) acquireURL(_ js.Value, args []js.Value) any {
	session, err := h.session(args)
	if err != nil {
		return failure(err)
	}
	raw := argString(args, 1)
	confirmed := len(args) > 2 && args[2].Truthy()
	result, elementID, err := session.AcquireURL(context.Background(), raw, confirmed)
	if err != nil {
		return failure(err)
	}
	return success(placedImage{Result: result, ElementID: elementID, View: session.View()})
}

// acquireFile(sessionID, name, contentType, bytes) takes a Uint8Array.
func (h *host) acquireFile(_ js.Value, args []js.Value) any {
	session, err := h.session(args)
	if err != nil {
		return failure(err)
	}
	var data []byte
	if len(args) > 3 {
		data = make([]byte, args[3].Get("length").Int())
		js.CopyBytesToGo(data, args[3])
	}
	file := imaging.File{Name: argString(args, 1), ContentType: argString(args, 2), Data: data}
	result, elementID, err := session.AcquireFile(context.Background(), file)
	if err != nil {
		return failure(err)
	}
	return success(placedImage{Result: result, ElementID: elementID, View: session.View()})
}

// save(sessionID, optionsJSON) returns a Promise because persisting waits on the host.
func (h *host) save(_ js.Value, args []js.Value) any {
	session, err := h.session(args)
	if err != nil {
		return failure(err)
	}
	var options saveOptions
	if err := decodeArg(args, 1, &options); err != nil {
		return failure(err)
	}
	return newPromise(func() any {
		saved, err := session.OnSave(context.Background(), options.EventData, options.Visibility)
		if err != nil {
			return failure(err)
		}
		return success(saved)
	})
}

func (h *host) cancel(_ js.Value, args []js.Value) any {
	session, err := h.session(args)
	if err != nil {
		return failure(err)
	}
	session.OnCancel()
	return success(session.View())
}

func (h *host) close(_ js.Value, args []js.Value) any {
	if h.registry != nil {
		h.registry.Close(argString(args, 0))
	}
	return js.Undefined()
}

func (h *host) session(args []js.Value) (*editor.Session, error) {
	if h.registry == nil {
		return nil, apperr.New("wasm.session", "not_configured", apperr.ErrValidation, errNotConfigured)
	}
	return h.registry.Get(argString(args, 0), h.principal)
}

// jsPersister saves through the host's persist callback.
type jsPersister struct {
	persist js.Value
}

type persistOutcome struct {
	body string
	err  error
}

func (p *jsPersister) Save(ctx context.Context, _ auth.Principal, doc documents.Document) (documents.Document, error) {
	encoded, err := documents.Encode(doc)
	if err != nil {
		return documents.Document{}, err
	}
	outcome := make(chan persistOutcome, 1)
	onResolve := js.FuncOf(func(_ js.Value, args []js.Value) any {
		outcome <- persistOutcome{body: argString(args, 0)}
		return nil
	})
	defer onResolve.Release()
	onReject := js.FuncOf(func(_ js.Value, args []js.Value) any {
		message := "persist rejected"
		if len(args) > 0 {
			message = args[0].Call("toString").String()
		}
		outcome <- persistOutcome{err: errors.New(message)}
		return nil
	})
	defer onReject.Release()

	p.persist.Invoke(string(encoded)).Call("then", onResolve, onReject)
	select {
	case result := <-outcome:
		if result.err != nil {
			return documents.Document{}, apperr.New("wasm.persist", "rejected", apperr.ErrPersistence, result.err)
		}
		return documents.Decode([]byte(result.body))
	case <-ctx.Done():
		return documents.Document{}, ctx.Err()
	}
}

func newPromise(work func() any) js.Value {
	var executor js.Func
	executor = js.FuncOf(func(_ js.Value, args []js.Value) any {
		resolve := args[0]
		go func() {
			defer executor.Release()
			resolve.Invoke(work())
		}()
		return nil
	})
	return js.Global().Get("Promise").New(executor)
}

func decodeArg(args []js.Value, index int, target any) error {
	raw := argString(args, index)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return apperr.New("wasm.decode", "invalid_json", apperr.ErrValidation, err)
	}
	return nil
}

func argString(args []js.Value, index int) string {
	if index >= len(args) || args[index].Type() != js.TypeString {
		return ""
	}
	return args[index].String()
}

func success(value any) any {
	encoded, err := json.Marshal(value)
	if err != nil {
		return failure(err)
	}
	return js.ValueOf(map[string]any{"result": js.Global().Get("JSON").Call("parse", string(encoded))})
}

func failure(err error) any {
	reason := apperr.ReasonOf(err)
	if reason == "" {
		reason = "internal_error"
	}
	return js.ValueOf(map[string]any{"error": reason, "code": apperr.CodeOf(err)})
}
