package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hanpama/gqlprune/internal/eventbus"
	"github.com/hanpama/gqlprune/internal/events"
	"github.com/hanpama/gqlprune/internal/jtd"
	"github.com/hanpama/gqlprune/internal/otel"
	"github.com/hanpama/gqlprune/internal/server"
)

const rootUsage = `gqlprune — prune GraphQL requests against a JTD schema

USAGE:
  gqlprune <command> [flags]

COMMANDS:
  serve            Run the HTTP pruning endpoint, optionally in front of an upstream
  clean            Prune one request read from files or stdin and print it as JSON
  convert          Re-encode a schema as verbose JTD or JTD-min
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -schema <file>                      JTD or JTD-min schema (required)
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>            Request body limit (default: 1048576, 0 disables)
  -server.cors-origin <origin>        Allowed CORS origin. Repeatable
  -server.log-pruned                  Log every request that had something removed
  -upstream.url <url>                 Forward pruned requests to this GraphQL endpoint
  -upstream.timeout <duration>        Upstream request timeout (default: 30s)
  -upstream.forward-header <name>     Copy HTTP header onto upstream requests. Repeatable
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: gqlprune)
`

const cleanUsage = `clean FLAGS:
  -schema <file>           JTD or JTD-min schema (required)
  -query <file>            GraphQL document (default: stdin)
  -variables <file>        JSON variables object
  -operation <name>        Operation name to keep in the request
  -types                   Also print variable types in the schema's encoding
  -pretty                  Indent JSON output
`

const convertUsage = `convert FLAGS:
  -schema <file>           JTD or JTD-min schema (required)
  -to <jtd|jtd-min>        Target encoding (required)
  -out <file>              Write to file (default: stdout)
`

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("gqlprune", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		// print usage on parse error
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "clean":
		return cmdClean(cmdArgs)
	case "convert":
		return cmdConvert(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "clean":
		fmt.Fprint(stdout, cleanUsage)
	case "convert":
		fmt.Fprint(stdout, convertUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdServe(args []string) error {
	schemaFile := ""
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	maxBody := int64(1 << 20)
	logPruned := false
	upstreamURL := ""
	upstreamTimeout := 30 * time.Second
	otelEndpoint := ""
	otelService := "gqlprune"
	var corsOrigins, forwardHeaders stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&schemaFile, "schema", schemaFile, "JTD or JTD-min schema")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Int64Var(&maxBody, "server.max-body", maxBody, "Request body limit")
	fs.Var(&corsOrigins, "server.cors-origin", "Allowed CORS origin")
	fs.BoolVar(&logPruned, "server.log-pruned", logPruned, "Log requests that had something removed")
	fs.StringVar(&upstreamURL, "upstream.url", upstreamURL, "Upstream GraphQL endpoint")
	fs.DurationVar(&upstreamTimeout, "upstream.timeout", upstreamTimeout, "Upstream request timeout")
	fs.Var(&forwardHeaders, "upstream.forward-header", "Copy HTTP header onto upstream requests")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if schemaFile == "" {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("-schema is required")
	}

	root, err := jtd.Load(schemaFile)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	if logPruned {
		eventbus.Subscribe(func(_ context.Context, e events.CleanFinish) {
			if e.Removed > 0 {
				log.Printf("pruned %d item(s) from operation %q in %s", e.Removed, e.OperationName, e.Duration)
			}
		})
	}

	sopts := serveOptions(pretty, timeout, maxBody, corsOrigins, upstreamURL, upstreamTimeout, forwardHeaders)
	h, err := server.New(root, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)

	if upstreamURL != "" {
		log.Printf("GraphQL pruning proxy listening on %s, forwarding to %s", addr, upstreamURL)
	} else {
		log.Printf("GraphQL pruning endpoint listening on %s", addr)
	}
	return http.ListenAndServe(addr, mux)
}

func serveOptions(pretty bool, timeout time.Duration, maxBody int64, cors []string,
	upstreamURL string, upstreamTimeout time.Duration, forwardHeaders []string) []server.Option {
	var sopts []server.Option
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if maxBody > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(maxBody))
	}
	if len(cors) > 0 {
		sopts = append(sopts, server.WithCORS(cors...))
	}
	if upstreamURL != "" {
		sopts = append(sopts, server.WithUpstream(upstreamURL),
			server.WithHTTPClient(&http.Client{Timeout: upstreamTimeout}))
	}
	if len(forwardHeaders) > 0 {
		sopts = append(sopts, server.WithForwardHeaders(forwardHeaders...))
	}
	return sopts
}

type cleanOutput struct {
	server.GraphQLRequest
	VariableTypes map[string]map[string]any `json:"variableTypes,omitempty"`
}

func cmdClean(args []string) error {
	schemaFile := ""
	queryFile := ""
	varsFile := ""
	operation := ""
	withTypes := false
	pretty := false
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&schemaFile, "schema", schemaFile, "JTD or JTD-min schema")
	fs.StringVar(&queryFile, "query", queryFile, "GraphQL document")
	fs.StringVar(&varsFile, "variables", varsFile, "JSON variables object")
	fs.StringVar(&operation, "operation", operation, "Operation name")
	fs.BoolVar(&withTypes, "types", withTypes, "Print variable types")
	fs.BoolVar(&pretty, "pretty", pretty, "Indent JSON output")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, cleanUsage)
		return err
	}
	if schemaFile == "" {
		fmt.Fprint(os.Stderr, cleanUsage)
		return fmt.Errorf("-schema is required")
	}

	root, err := jtd.Load(schemaFile)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	var query []byte
	if queryFile == "" || queryFile == "-" {
		query, err = io.ReadAll(stdin)
	} else {
		query, err = os.ReadFile(queryFile)
	}
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}
	req := server.GraphQLRequest{Query: string(query), OperationName: operation}
	if varsFile != "" {
		data, err := os.ReadFile(varsFile)
		if err != nil {
			return fmt.Errorf("read variables: %w", err)
		}
		if err := server.DecodeJSON(data, &req.Variables); err != nil {
			return fmt.Errorf("parse variables: %w", err)
		}
	}

	cleaned, meta, gerr := server.Clean(context.Background(), root, req)
	if gerr != nil {
		return gerr
	}
	out := cleanOutput{GraphQLRequest: cleaned}
	if withTypes {
		out.VariableTypes = map[string]map[string]any{}
		for _, op := range meta.Operations {
			types := map[string]any{}
			for name, t := range op.VariableTypes {
				types[name] = jtd.EncodeType(t, root.Encoding)
			}
			out.VariableTypes[op.Name] = types
		}
	}

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func cmdConvert(args []string) error {
	schemaFile := ""
	to := ""
	outFile := ""
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&schemaFile, "schema", schemaFile, "JTD or JTD-min schema")
	fs.StringVar(&to, "to", to, "Target encoding")
	fs.StringVar(&outFile, "out", outFile, "Write to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, convertUsage)
		return err
	}
	if schemaFile == "" || to == "" {
		fmt.Fprint(os.Stderr, convertUsage)
		return fmt.Errorf("-schema and -to are required")
	}

	root, err := jtd.Load(schemaFile)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	data, err := jtd.Marshal(root, jtd.Encoding(to))
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	data = append(data, '\n')
	if outFile == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(outFile, data, 0644)
}
