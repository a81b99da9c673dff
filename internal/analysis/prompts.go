package analysis

import (
	"fmt"
	"strings"

	"github.com/repoatlas/repoatlas/internal/githubrepo"
)

// formatRepo renders a fetched repository as prompt text: metadata first,
// then every file with a path header.
func formatRepo(repo githubrepo.Repository) string {
	var sb strings.Builder

	sb.WriteString("Repository: ")
	sb.WriteString(repo.Name)
	sb.WriteString("\n")
	if repo.Description != "" {
		sb.WriteString("Description: ")
		sb.WriteString(repo.Description)
		sb.WriteString("\n")
	}
	if repo.Language != "" {
		sb.WriteString("Primary language: ")
		sb.WriteString(repo.Language)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Stars: %d  Forks: %d\n", repo.Stars, repo.Forks)
	if repo.URL != "" {
		sb.WriteString("URL: ")
		sb.WriteString(repo.URL)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Files processed: %d\n\n", repo.ProcessedFiles)

	for _, file := range repo.Files {
		sb.WriteString("--- File: ")
		sb.WriteString(file.Path)
		if file.Truncated {
			fmt.Fprintf(&sb, " (truncated, original %d bytes)", file.Size)
		}
		sb.WriteString(" ---\n")
		sb.WriteString(file.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// appendRejectionFeedback adds the previous gate feedback to a prompt so a
// retried stage can address it.
func appendRejectionFeedback(sb *strings.Builder, feedback string) {
	if feedback == "" {
		return
	}
	sb.WriteString("\nA previous version of this output was rejected with the following feedback. Address it:\n")
	sb.WriteString(feedback)
	sb.WriteString("\n")
}

// dataQualityPrompt asks the reviewer to assess the fetched repository
// data.
func dataQualityPrompt(state State) string {
	var sb strings.Builder

	sb.WriteString("You are a data quality reviewer. Assess the completeness and quality of the GitHub repository data below.\n\n")
	sb.WriteString("Evaluate:\n")
	sb.WriteString("1. Repository accessibility and metadata completeness\n")
	sb.WriteString("2. File content quality and readability\n")
	sb.WriteString("3. Data structure and organization\n")
	sb.WriteString("4. Any missing or corrupted information\n\n")
	sb.WriteString("Provide a structured review with:\n")
	sb.WriteString("- Overall assessment (APPROVED/NEEDS_IMPROVEMENT)\n")
	sb.WriteString("- Specific issues found (if any)\n")
	sb.WriteString("- Recommendations for data quality improvement\n")
	sb.WriteString("- File processing statistics\n\n")

	sb.WriteString("Repository Data:\n")
	for _, repo := range state.Repos {
		sb.WriteString(formatRepo(repo))
	}
	for _, failure := range state.FailedRepos {
		fmt.Fprintf(&sb, "Repository %s could not be fetched: %s\n", failure.Name, failure.Reason)
	}

	return sb.String()
}

// analyzerPrompt asks for a full technical analysis of one repository.
func analyzerPrompt(repo githubrepo.Repository, feedback string) string {
	var sb strings.Builder

	sb.WriteString("You are a senior software architect analyzing GitHub repositories.\n\n")
	sb.WriteString("For the repository data below, provide a comprehensive technical analysis covering:\n\n")
	sb.WriteString("1. **Purpose and Domain**\n")
	sb.WriteString("   - What problem does this repository solve?\n")
	sb.WriteString("   - Target audience and use cases\n")
	sb.WriteString("   - Business/technical domain\n\n")
	sb.WriteString("2. **Technical Architecture**\n")
	sb.WriteString("   - Key technologies, frameworks, and languages used\n")
	sb.WriteString("   - Architecture patterns and design decisions\n")
	sb.WriteString("   - Dependencies and integrations\n\n")
	sb.WriteString("3. **Code Quality and Structure**\n")
	sb.WriteString("   - Project organization and structure\n")
	sb.WriteString("   - Code quality indicators\n")
	sb.WriteString("   - Documentation and testing approaches\n\n")
	sb.WriteString("4. **Notable Patterns and Strengths**\n")
	sb.WriteString("   - Innovative or well-implemented features\n")
	sb.WriteString("   - Best practices demonstrated\n")
	sb.WriteString("   - Scalability and maintainability aspects\n\n")
	sb.WriteString("5. **Areas for Improvement**\n")
	sb.WriteString("   - Potential technical debt or issues\n")
	sb.WriteString("   - Missing components or features\n")
	sb.WriteString("   - Performance or security considerations\n\n")

	appendRejectionFeedback(&sb, feedback)

	sb.WriteString("Repository Data:\n")
	sb.WriteString(formatRepo(repo))

	return sb.String()
}

// analysisQualityPrompt asks the reviewer to judge the combined analyses.
func analysisQualityPrompt(analyses []string) string {
	var sb strings.Builder

	sb.WriteString("You are an analysis quality reviewer. Evaluate the technical analysis below for:\n\n")
	sb.WriteString("1. **Technical Depth**\n")
	sb.WriteString("   - Are all major technical aspects covered?\n")
	sb.WriteString("   - Is the analysis sufficiently detailed?\n")
	sb.WriteString("   - Are the conclusions well-supported?\n\n")
	sb.WriteString("2. **Accuracy and Completeness**\n")
	sb.WriteString("   - Are the technical assessments accurate?\n")
	sb.WriteString("   - Is any critical information missing?\n")
	sb.WriteString("   - Are the recommendations actionable?\n\n")
	sb.WriteString("3. **Professional Standards**\n")
	sb.WriteString("   - Is the analysis clearly structured?\n")
	sb.WriteString("   - Is the language professional and precise?\n")
	sb.WriteString("   - Would this be useful for technical decision-making?\n\n")
	sb.WriteString("Provide a structured review with:\n")
	sb.WriteString("- Overall assessment (APPROVED/NEEDS_IMPROVEMENT)\n")
	sb.WriteString("- Specific strengths of the analysis\n")
	sb.WriteString("- Areas requiring improvement (if any)\n")
	sb.WriteString("- Recommendations for enhancing analysis quality\n\n")

	sb.WriteString("Analysis to Review:\n")
	sb.WriteString(strings.Join(analyses, " "))

	return sb.String()
}

// synthesizerPrompt asks for the combined multi-repository report.
func synthesizerPrompt(analyses []string, feedback string) string {
	var sb strings.Builder

	sb.WriteString("Combine the following individual repository analyses into a comprehensive multi-repository report.\n\n")
	sb.WriteString("Create a cohesive report that includes:\n\n")
	sb.WriteString("1. **Executive Summary**\n")
	sb.WriteString("   - Overview of all repositories analyzed\n")
	sb.WriteString("   - Key findings and insights\n")
	sb.WriteString("   - Overall portfolio assessment\n\n")
	sb.WriteString("2. **Technical Portfolio Analysis**\n")
	sb.WriteString("   - Technology stack trends and patterns\n")
	sb.WriteString("   - Architecture approaches across repositories\n")
	sb.WriteString("   - Code quality and best practices summary\n\n")
	sb.WriteString("3. **Comparative Insights**\n")
	sb.WriteString("   - Similarities and differences between repositories\n")
	sb.WriteString("   - Evolution of technologies and approaches\n")
	sb.WriteString("   - Cross-repository learning opportunities\n\n")
	sb.WriteString("4. **Strategic Recommendations**\n")
	sb.WriteString("   - Portfolio-level improvement opportunities\n")
	sb.WriteString("   - Technology standardization suggestions\n")
	sb.WriteString("   - Development process insights\n\n")

	appendRejectionFeedback(&sb, feedback)

	sb.WriteString("Individual Analyses:\n")
	sb.WriteString(strings.Join(analyses, "\n\n"))

	return sb.String()
}

// finalQualityPrompt asks the reviewer to judge the synthesized report.
func finalQualityPrompt(report string) string {
	var sb strings.Builder

	sb.WriteString("You are a final quality reviewer for technical reports. Evaluate this multi-repository analysis report for:\n\n")
	sb.WriteString("1. **Content Quality**\n")
	sb.WriteString("   - Is the report comprehensive and well-structured?\n")
	sb.WriteString("   - Are all sections complete and coherent?\n")
	sb.WriteString("   - Is the executive summary accurate and insightful?\n\n")
	sb.WriteString("2. **Professional Standards**\n")
	sb.WriteString("   - Is the language clear and professional?\n")
	sb.WriteString("   - Are technical terms used correctly?\n")
	sb.WriteString("   - Is the format appropriate for stakeholders?\n\n")
	sb.WriteString("3. **Actionable Value**\n")
	sb.WriteString("   - Does the report provide actionable insights?\n")
	sb.WriteString("   - Are recommendations practical and specific?\n")
	sb.WriteString("   - Would this report be valuable for decision-making?\n\n")
	sb.WriteString("Provide a structured final review with:\n")
	sb.WriteString("- Overall assessment (APPROVED/NEEDS_IMPROVEMENT)\n")
	sb.WriteString("- Report strengths and highlights\n")
	sb.WriteString("- Areas requiring revision (if any)\n")
	sb.WriteString("- Final recommendations for report quality\n\n")

	sb.WriteString("Report to Review:\n")
	sb.WriteString(report)

	return sb.String()
}
