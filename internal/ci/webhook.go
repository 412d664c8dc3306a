package ci

import "regexp"

// WebhookPayload is the pipeline-event body posted by the external CI system
type WebhookPayload struct {
	ObjectAttributes struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	} `json:"object_attributes"`
	Commit struct {
		Title string `json:"title"`
	} `json:"commit"`
}

// Deployment pipelines are driven off merge commits named by convention:
//
//	Merge branch 'deployment/<tenant>/<id>' into '<branch>'
//
// The watched project carries unrelated activity too; anything that does
// not match is not ours.
var deploymentTitlePattern = regexp.MustCompile(`^Merge branch 'deployment/([a-z0-9-]+)/([A-Za-z0-9-]+)' into '.+'$`)

// ParseDeploymentRef extracts the tenant name and deployment id from a
// merge-commit title, reporting whether the title matched the convention.
func ParseDeploymentRef(commitTitle string) (tenant string, deploymentID string, ok bool) {
	match := deploymentTitlePattern.FindStringSubmatch(commitTitle)
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}
