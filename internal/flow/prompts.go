package flow

import (
	"fmt"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// System prompts for the four workflow roles. The assistant persona is
// "Watson", a technical learning coach; all user-facing output is Chinese.
const (
	coachDraftPrompt = `你是“Watson”，一位友好且乐于助人的技术学习助手。
你的任务是针对用户最新的提问起草一份回复草稿。
结合当前用户画像，按用户的水平循序渐进地讲解；涉及时效性信息或你不确定的技术细节时，使用 web_search 工具查证。
保持温暖、鼓励的语气。
**必须全程使用中文。**`

	criticPromptTemplate = `你是一位严格的教学质量审核员，负责审阅学习助手生成的回复草稿。
请从以下角度检查：内容是否准确、讲解是否清晰、是否贴合用户当前的水平与学习目标。
如果草稿已经足够好，请只输出 PASS，不要输出其他任何内容。
否则，请给出具体、可执行的修改意见。

草稿内容：
%s`

	mentorPrompt = `你是“Watson”的导师角色，在每轮对话结束后进行复盘。
请观察整段对话，给出一句简短的总结或下一步学习建议。
如果你从对话中了解到用户新的知识状态或学习目标，请调用 update_profile 工具更新用户画像。
如需推荐学习资源，可以调用 web_search 工具查找。
**必须全程使用中文。**`

	titlePromptTemplate = `请根据以下对话内容，生成一个简短的标题（不超过 10 个字）。
如果是中文对话，请使用中文标题。
不要包含“标题：”等前缀，直接输出标题内容。

对话内容：
%s`
)

// Finalize stage instructions, chosen by the critic's verdict.
const (
	finalizePassInstruction   = "The critic had no complaints (PASS). Please output the draft exactly as is, without any additional commentary."
	finalizeReviseInstruction = "The critic provided this feedback: %s. Please revise the draft to address it."
)

const finalizePromptTemplate = `你是“Watson”，一位友好且乐于助人的技术学习助手。

你之前生成的回复草稿收到了一些反馈意见。
%s

草稿内容：
%s

当前用户画像：
%s

请生成最终的回复。
保持温暖、鼓励的语气。
**必须全程使用中文。**`

// profileString renders the user profile for prompt embedding.
func profileString(p models.UserProfile) string {
	return fmt.Sprintf("Knowledge Summary: %s\n\nLearning Goals: %s", p.KnowledgeSummary, p.LearningGoals)
}

// contextString renders the shared date and profile context block appended
// to the draft and mentor system prompts.
func contextString(p models.UserProfile, now time.Time) string {
	return fmt.Sprintf("\n\nToday's Date: %s\n\nCURRENT USER PROFILE:\n%s", now.Format("2006-01-02"), profileString(p))
}

// draftSystemPrompt builds the draft stage's system prompt. On a revision
// pass the previous draft and the critic's feedback are embedded.
func draftSystemPrompt(p models.UserProfile, now time.Time, state *models.ConversationState) string {
	base := coachDraftPrompt + contextString(p, now)
	if state.RevisionCount > 0 && state.Critique != "" && !CritiquePassed(state.Critique) {
		return base + fmt.Sprintf("\n\nPREVIOUS DRAFT:\n%s\n\nCRITIC FEEDBACK:\n%s\n\nPlease revise the draft based on the feedback.", state.Draft, state.Critique)
	}
	return base
}

// critiqueSystemPrompt builds the critique stage's system prompt.
func critiqueSystemPrompt(p models.UserProfile, draft string) string {
	return fmt.Sprintf(criticPromptTemplate, draft) + fmt.Sprintf("\n\nCURRENT USER PROFILE:\n%s", profileString(p))
}

// finalizeSystemPrompt builds the finalize stage's system prompt. A passed
// critique instructs verbatim reproduction of the draft.
func finalizeSystemPrompt(p models.UserProfile, draft, critique string) string {
	instruction := finalizePassInstruction
	if !CritiquePassed(critique) {
		instruction = fmt.Sprintf(finalizeReviseInstruction, critique)
	}
	return fmt.Sprintf(finalizePromptTemplate, instruction, draft, profileString(p))
}

// mentorSystemPrompt builds the mentor stage's system prompt.
func mentorSystemPrompt(p models.UserProfile, now time.Time) string {
	return mentorPrompt + contextString(p, now)
}

// titlePrompt builds the thread summarization prompt over rendered history.
func titlePrompt(historyText string) string {
	return fmt.Sprintf(titlePromptTemplate, historyText)
}
