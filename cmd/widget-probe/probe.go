package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"chatdesk-backend/internal/widget"
)

type Options struct {
	APIURL       string
	WSURL        string
	WidgetKey    string
	Origin       string
	IdentityFile string
	Department   string
	PreChat      map[string]string
	Name         string
	Email        string
	Messages     []string
	Listen       time.Duration
	LogLevel     string
}

func (o *Options) Complete() {
	o.APIURL = strings.TrimRight(strings.TrimSpace(o.APIURL), "/")
	o.WSURL = strings.TrimRight(strings.TrimSpace(o.WSURL), "/")
	o.WidgetKey = strings.TrimSpace(o.WidgetKey)
}

func (o *Options) Validate() error {
	if o.APIURL == "" {
		return errors.New("must specify --api")
	}
	if o.WidgetKey == "" {
		return errors.New("must specify --widget-key or CHATDESK_WIDGET_KEY")
	}
	if o.Listen < 0 {
		return errors.New("--listen must not be negative")
	}
	return nil
}

// wantsConversation reports whether the run needs a conversation.
func (o *Options) wantsConversation() bool {
	return o.Department != "" || len(o.PreChat) > 0 || len(o.Messages) > 0
}

func (o *Options) config() widget.Config {
	cfg := widget.Config{
		APIURL:    o.APIURL,
		WSURL:     o.WSURL,
		WidgetKey: o.WidgetKey,
		Origin:    o.Origin,
	}
	if o.IdentityFile != "" {
		cfg.Layers = []widget.Layer{widget.NewFileLayer(o.IdentityFile)}
	}
	return cfg
}

func (o *Options) Run(ctx context.Context, out io.Writer) error {
	w := widget.New(o.config())
	defer w.Destroy()

	w.On(widget.EventMessageReceived, func(e widget.Event) {
		fmt.Fprintf(out, "<- [%s] %s\n", e.Message.SenderType, e.Message.Content)
	})
	w.On(widget.EventTyping, func(e widget.Event) {
		fmt.Fprintf(out, "   typing=%t\n", e.Typing.IsTyping)
	})
	w.On(widget.EventError, func(e widget.Event) {
		fmt.Fprintf(out, "!! %v\n", e.Err)
	})

	if err := w.Init(ctx); err != nil {
		return err
	}
	sess, _ := w.Session()
	fmt.Fprintf(out, "visitor %s\nsession %s (resumed=%t) org=%s\n", w.VisitorID(), sess.SessionToken, sess.Resumed, sess.OrganizationID)
	for _, dept := range w.Departments() {
		fmt.Fprintf(out, "department %s %q (%d pre-chat fields)\n", dept.ID, dept.Name, len(dept.PreChatForm))
	}

	if o.wantsConversation() {
		if _, ok := w.Conversation(); !ok {
			preChat := make(map[string]any, len(o.PreChat))
			for k, v := range o.PreChat {
				preChat[k] = v
			}
			if _, err := w.StartConversation(ctx, o.Department, preChat, widget.Contact{Name: o.Name, Email: o.Email}); err != nil {
				return err
			}
		}
		conv, _ := w.Conversation()
		fmt.Fprintf(out, "conversation %s status=%s\n", conv.ID, conv.Status)

		for _, content := range o.Messages {
			message, err := w.Send(ctx, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "-> %s %s\n", message.ID, message.Content)
		}
	}

	if o.Listen > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(o.Listen):
		}
	}
	return nil
}
