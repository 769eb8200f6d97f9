package runner

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/worqly/orchestrator/internal/credential"
	"github.com/worqly/orchestrator/internal/graph"
	"github.com/worqly/orchestrator/internal/provider"
)

// Action performs a side-effecting call: either a built-in capability
// (http_request) or a dispatch to a registered external capability
// provider. OAuth-backed providers receive a valid credential pulled from
// the token lifecycle manager.
type Action struct {
	providers   *provider.Registry
	credentials *credential.Manager
	client      *http.Client
	logger      *zap.SugaredLogger
}

// NewAction creates the generic action runner.
func NewAction(providers *provider.Registry, credentials *credential.Manager, logger *zap.SugaredLogger) *Action {
	return &Action{
		providers:   providers,
		credentials: credentials,
		client:      &http.Client{Timeout: httpTimeout},
		logger:      logger,
	}
}

func (a *Action) Run(ctx context.Context, in Input) (Result, error) {
	actionType := configString(in.Config, "action_type")

	switch {
	case actionType == "http_request":
		return a.runHTTPRequest(ctx, in)
	case configString(in.Config, "provider") != "":
		return a.runProviderAction(ctx, in, configString(in.Config, "provider"), actionType)
	default:
		return Result{}, fmt.Errorf("unknown action type: %s", actionType)
	}
}

// ForProvider returns a runner bound to one capability provider, for
// registration under that provider's name.
func (a *Action) ForProvider(name string) Runner {
	return Func(func(ctx context.Context, in Input) (Result, error) {
		return a.runProviderAction(ctx, in, name, configString(in.Config, "action_type"))
	})
}

func (a *Action) runHTTPRequest(ctx context.Context, in Input) (Result, error) {
	rawURL := configString(in.Config, "url")
	if rawURL == "" {
		return Result{}, fmt.Errorf("http request URL not configured")
	}

	method := strings.ToUpper(configString(in.Config, "method"))
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return Result{}, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	headers := make(map[string]string)
	for k, v := range configMap(in.Config, "headers") {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	var body any
	if method == http.MethodPost || method == http.MethodPut {
		body = in.Config["body"]
		if body == nil {
			body = in.Value
		}
	}

	env, err := doRequest(ctx, a.client, method, rawURL, headers, body)
	if err != nil {
		return Result{}, fmt.Errorf("http request failed: %w", err)
	}
	return Result{Output: env.asMap()}, nil
}

func (a *Action) runProviderAction(ctx context.Context, in Input, providerName, actionType string) (Result, error) {
	p, err := a.providers.Get(providerName)
	if err != nil {
		return Result{}, err
	}

	if p.OAuthBacked() {
		ref := configString(in.Config, "credential_ref")
		if ref == "" {
			ref = providerName
		}
		if _, err := a.credentials.GetValid(ctx, ref); err != nil {
			return Result{}, fmt.Errorf("provider %s: %w", providerName, err)
		}
	}

	input := asMap(in.Value)
	a.logger.Debugw("Dispatching provider action",
		"provider", providerName,
		"action_type", actionType,
	)

	output, err := p.ExecuteAction(ctx, actionType, in.Config, input)
	if err != nil {
		return Result{}, fmt.Errorf("provider %s action %s: %w", providerName, actionType, err)
	}
	return Result{Output: output}, nil
}

// RegisterBuiltins installs every built-in runner family on a registry.
func RegisterBuiltins(reg *Registry, providers *provider.Registry, credentials *credential.Manager, logger *zap.SugaredLogger) {
	action := NewAction(providers, credentials, logger)
	reg.Register(graph.NodeTrigger, NewTrigger())
	reg.Register(graph.NodeAction, action)
	reg.Register(graph.NodeCondition, NewCondition())
	reg.Register(graph.NodeTransformer, NewTransformer())
	reg.Register(graph.NodeWebhook, NewWebhook())
	reg.Register(graph.NodeDelay, NewDelay())
	reg.Register(graph.NodeLoop, NewLoop(reg))
	for _, name := range providers.Names() {
		reg.RegisterAction(name, action.ForProvider(name))
	}
}

// asMap coerces a runner input value into a map, wrapping scalars.
func asMap(v any) map[string]any {
	switch m := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return m
	default:
		return map[string]any{"value": v}
	}
}
