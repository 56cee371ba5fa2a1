package toolkit

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rotisserie/eris"

	"github.com/urbangrammar/demoland-assistant/internal/query"
)

// Tool names.
const (
	SignatureAtPoints       = "signature_at_points"
	ScenarioChangeAtPoint   = "scenario_change_at_point"
	SummarizeInRegion       = "summarize_in_region"
	SignatureDescriptions   = "signature_descriptions"
	GetRegionNames          = "get_region_names"
	GetSpatialSignatureList = "get_spatial_signature_list"
	FindPointsOfInterest    = "find_points_of_interest"
)

type signatureAtPointsArgs struct {
	Points map[string]any `json:"points" validate:"required"`
}

type scenarioChangeArgs struct {
	Points []query.NamedPoint `json:"points" validate:"required,min=1,dive"`
}

type summarizeArgs struct {
	Region string `json:"region" validate:"required"`
}

type poiArgs struct {
	Amenity string `json:"amenity_type" validate:"required"`
}

type noArgs struct{}

// Build registers every spatial query tool backed by svc.
func Build(svc *query.Service) *Registry {
	r := NewRegistry()

	r.add(mcp.NewTool(
		SignatureAtPoints,
		mcp.WithDescription("Given a GeoJSON FeatureCollection of points, returns the spatial signature of the area containing each point. Points outside the study area are omitted."),
		mcp.WithObject(
			"points",
			mcp.Required(),
			mcp.Description(`GeoJSON FeatureCollection of Point features, e.g. {"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"Monument"},"geometry":{"type":"Point","coordinates":[-1.6131,54.9738]}}]}`),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), Typed(SignatureAtPoints, func(ctx context.Context, a signatureAtPointsArgs) (any, error) {
		b, err := json.Marshal(a.Points)
		if err != nil {
			return nil, eris.Wrap(err, "toolkit: re-encode points")
		}
		return svc.SignatureAtPoints(ctx, b)
	}))

	r.add(mcp.NewTool(
		ScenarioChangeAtPoint,
		mcp.WithDescription("For the current scenario and a list of named points, returns the scenario values at each point: signature type, air quality, house price, job accessibility, greenspace accessibility, their change from the baseline, deprivation score and region."),
		mcp.WithArray(
			"points",
			mcp.Required(),
			mcp.Description("Points to look up"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "description": "Label for the point"},
					"lat":  map[string]any{"type": "number", "description": "Latitude in degrees"},
					"lon":  map[string]any{"type": "number", "description": "Longitude in degrees"},
				},
				"required": []string{"lat", "lon"},
			}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), Typed(ScenarioChangeAtPoint, func(ctx context.Context, a scenarioChangeArgs) (any, error) {
		return svc.ScenarioChangeAtPoint(ctx, a.Points)
	}))

	r.add(mcp.NewTool(
		SummarizeInRegion,
		mcp.WithDescription("Summarizes the spatial signatures in a named region as counts per signature type. Use get_region_names for valid names. Not for categories of location such as restaurants."),
		mcp.WithString(
			"region",
			mcp.Required(),
			mcp.Description("Exact region name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), Typed(SummarizeInRegion, func(ctx context.Context, a summarizeArgs) (any, error) {
		return svc.RegionSummary(ctx, a.Region)
	}))

	r.add(mcp.NewTool(
		SignatureDescriptions,
		mcp.WithDescription("Returns the description of each of the sixteen spatial signatures."),
		mcp.WithReadOnlyHintAnnotation(true),
	), Typed(SignatureDescriptions, func(ctx context.Context, _ noArgs) (any, error) {
		return svc.SignatureCatalog(ctx)
	}))

	r.add(mcp.NewTool(
		GetRegionNames,
		mcp.WithDescription("Returns the names of the regions available to query."),
		mcp.WithReadOnlyHintAnnotation(true),
	), Typed(GetRegionNames, func(ctx context.Context, _ noArgs) (any, error) {
		return svc.RegionCatalog(ctx)
	}))

	r.add(mcp.NewTool(
		GetSpatialSignatureList,
		mcp.WithDescription("Returns the names and counts of each spatial signature."),
		mcp.WithReadOnlyHintAnnotation(true),
	), Typed(GetSpatialSignatureList, func(ctx context.Context, _ noArgs) (any, error) {
		return svc.SignatureCounts(ctx)
	}))

	r.add(mcp.NewTool(
		FindPointsOfInterest,
		mcp.WithDescription("Finds amenities of one OpenStreetMap type (for example pub, school, cafe) in the study area and returns their longitude, latitude and name."),
		mcp.WithString(
			"amenity_type",
			mcp.Required(),
			mcp.Description("OpenStreetMap amenity tag value, lowercase with underscores"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	), Typed(FindPointsOfInterest, func(ctx context.Context, a poiArgs) (any, error) {
		return svc.FindPointsOfInterest(ctx, a.Amenity)
	}))

	return r
}

func (r *Registry) add(def mcp.Tool, h Handler) {
	r.Register(Tool{
		Name:        def.Name,
		Description: def.Description,
		Definition:  def,
		Handler:     h,
	})
}
