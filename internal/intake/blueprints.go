package intake

import "loom/internal/store"

type taskBlueprint struct {
	Key              string
	Name             string
	Role             store.AgentRole
	DependsOn        []string
	EstimatedSeconds float64
}

// Every pipeline starts with the two system steps and ends with a qa review.
// Each content type carries a producer step so the production stage always
// has work to gate on.
var blueprints = map[store.RequestType][]taskBlueprint{
	store.TypeVideoAd: {
		{Key: "plan_intake", Name: "Plan intake", Role: store.RoleExecutive},
		{Key: "task_breakdown", Name: "Task breakdown", Role: store.RoleTaskPlanner, DependsOn: []string{"plan_intake"}},
		{Key: "brand_strategy", Name: "Brand strategy", Role: store.RoleStrategist, DependsOn: []string{"task_breakdown"}},
		{Key: "ad_copy", Name: "Ad copy", Role: store.RoleCopywriter, DependsOn: []string{"brand_strategy"}},
		{Key: "video_production", Name: "Video production", Role: store.RoleProducer, DependsOn: []string{"brand_strategy", "ad_copy"}},
		{Key: "final_review", Name: "Final review", Role: store.RoleQA, DependsOn: []string{"video_production"}},
	},
	store.TypeSocialPost: {
		{Key: "plan_intake", Name: "Plan intake", Role: store.RoleExecutive},
		{Key: "task_breakdown", Name: "Task breakdown", Role: store.RoleTaskPlanner, DependsOn: []string{"plan_intake"}},
		{Key: "brand_strategy", Name: "Brand strategy", Role: store.RoleStrategist, DependsOn: []string{"task_breakdown"}},
		{Key: "post_copy", Name: "Post copy", Role: store.RoleCopywriter, DependsOn: []string{"brand_strategy"}},
		{Key: "asset_render", Name: "Asset render", Role: store.RoleProducer, DependsOn: []string{"post_copy"}, EstimatedSeconds: 60},
		{Key: "final_review", Name: "Final review", Role: store.RoleQA, DependsOn: []string{"asset_render"}},
	},
	store.TypeBlogArticle: {
		{Key: "plan_intake", Name: "Plan intake", Role: store.RoleExecutive},
		{Key: "task_breakdown", Name: "Task breakdown", Role: store.RoleTaskPlanner, DependsOn: []string{"plan_intake"}},
		{Key: "brand_strategy", Name: "Brand strategy", Role: store.RoleStrategist, DependsOn: []string{"task_breakdown"}},
		{Key: "article_draft", Name: "Article draft", Role: store.RoleCopywriter, DependsOn: []string{"brand_strategy"}, EstimatedSeconds: 90},
		{Key: "hero_image", Name: "Hero image", Role: store.RoleProducer, DependsOn: []string{"article_draft"}, EstimatedSeconds: 60},
		{Key: "final_review", Name: "Final review", Role: store.RoleQA, DependsOn: []string{"hero_image"}},
	},
}
