package vision

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// DefaultPrompt is the base describe prompt sent when the caller supplies none.
const DefaultPrompt = "You are viewing an Android phone screenshot. " +
	"Describe what is on the screen, list the most important visible UI elements (buttons, tabs, input fields), " +
	"and suggest 1-3 possible next actions a user might take. " +
	"If you can infer likely labels (e.g., 'Search', 'Cancel'), include them. " +
	"Answer in Chinese."

// BuildPrompt assembles the final prompt text. Focus text is appended as an
// explicit attention hint; when coordinates are requested the relative
// coordinate instruction block is attached and the caller should double its
// token budget to make room for the structured tail.
func BuildPrompt(req schemas.ObserveRequest) string {
	base := req.Prompt
	if base == "" {
		base = DefaultPrompt
	}
	if req.Focus != "" {
		base = fmt.Sprintf("%s\n\nFocus on: %s", base, req.Focus)
	}
	if req.WithCoords {
		base = withCoordinateBlock(base, req.Screen)
	}
	return base
}

// withCoordinateBlock appends the structured element instructions. The marker
// lines here must stay in sync with the patterns ExtractElements matches.
func withCoordinateBlock(base string, screen schemas.ScreenInfo) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString(`

**额外任务：识别可点击元素并输出相对坐标信息**

**极其重要：严格使用相对坐标系统**
- **坐标范围：严格限制在 0-999 之间 (绝对不能超过999)**
- ** (0,0) = 屏幕左上角，(999,999) = 屏幕右下角**
- **示例：屏幕中心的按钮坐标约为 (500, 500)**
- **请完全忽略绝对像素坐标，只使用0-999的相对坐标系统**

**请识别所有可交互元素并提供以下信息：**
1. 元素类型（按钮、输入框、链接、标签等）
2. 相对坐标 (严格限制在0-999范围内)
3. 元素的重要性排序（高/中/低）

**输出格式示例：**
1. 🔥 **搜索框** (高优先级)
   🎯 相对坐标：(500, 150)
   📝 说明：点击搜索框开始搜索
`)
	fmt.Fprintf(&sb, "\n当前屏幕分辨率为 %dx%d。\n", screen.Width, screen.Height)
	return sb.String()
}
