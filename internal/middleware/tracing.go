package middleware

import (
	"agora/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Locals keys set by Tracing.
const (
	TraceIDLocal = "traceID"
	SpanIDLocal  = "spanID"
)

// TraceHeader carries the trace ID back to the client.
const TraceHeader = "X-Trace-ID"

// Tracing opens a server span per request, continuing any W3C trace context
// the caller sent. The span is renamed to the matched route once routing is
// done so /content/post/7 and /content/post/8 share a name.
func Tracing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))
		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Method()),
				semconv.URLPath(c.Path()),
				semconv.ClientAddress(c.IP()),
				semconv.UserAgentOriginal(c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		sc := span.SpanContext()
		c.Locals(TraceIDLocal, sc.TraceID().String())
		c.Locals(SpanIDLocal, sc.SpanID().String())
		c.Set(TraceHeader, sc.TraceID().String())
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			span.SetAttributes(attribute.String("request.id", rid))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			span.SetName(c.Method() + " " + r.Path)
			span.SetAttributes(semconv.HTTPRoute(r.Path))
		}
		if t := c.Params("type"); t != "" {
			span.SetAttributes(attribute.String("content.type", t), attribute.String("content.id", c.Params("id")))
		}
		if p := PrincipalFrom(c); p.Valid() {
			span.SetAttributes(attribute.String("principal.kind", string(p.Kind)))
		}

		status := c.Response().StatusCode()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, "")
		}
		return err
	}
}
