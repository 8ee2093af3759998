// Package trainer はコーチのボイストレーニング機能を提供する。
// 30問のブランド質問への回答収集、完成度採点、ナレッジのコミットを含む。
package trainer

// Questions はボイストレーニングのブランド質問。インデックスは1始まり
// （Questions[0]が質問1）。順序と本数は固定ポリシー。
var Questions = [...]string{
	"Describe your coaching philosophy in your own words. What do you believe about transformation that most coaches get wrong?",
	"Who is your ideal client? Describe them in detail: their struggles, their goals, and the language they use to describe their problems.",
	"What is your origin story? What happened in your life that led you to become a coach?",
	"How do you open a conversation with a brand-new lead in the DMs? Write it exactly as you would type it.",
	"What tone do you use with clients: tough love, nurturing, clinical, playful? Give an example sentence in that tone.",
	"What are the three most common objections you hear before someone signs up, and how do you answer each one?",
	"Walk through your onboarding process step by step, from the moment a client pays to their first check-in.",
	"How do you structure a weekly check-in? What do you ask for, and how do you respond to the data?",
	"Describe your signature method or framework. What are its phases and what happens in each?",
	"What results do your clients typically see in the first 30 days? Be specific with numbers where you can.",
	"How do you explain fat loss plateaus to a frustrated client? Write your actual explanation.",
	"What biomarkers or biofeedback do you track with clients, and why does each one matter?",
	"How do you talk about nutrition? Do you use macros, intuitive eating, meal plans? Explain your approach and the reasoning.",
	"What is your stance on training intensity and recovery? How do you program a typical week?",
	"How do you handle a client who has stopped responding to messages? Write the exact re-engagement message you would send.",
	"What words or phrases do you never use with clients? What language is off-brand for you?",
	"What words or phrases do you use constantly? List your verbal signatures and catchphrases.",
	"Describe a client transformation you are most proud of. Tell it as a story you would share publicly.",
	"How do you explain hormones and metabolism to someone with zero science background?",
	"What does your content strategy look like? What types of posts do you make and on which platforms?",
	"Write a sample social media caption in your voice promoting a client win.",
	"How do you price your offers? Walk through your packages and what's included in each.",
	"How do you create urgency in a sales conversation without being pushy? Give a real example.",
	"What is your refund or guarantee policy, and how do you communicate it?",
	"How do you handle a client who wants to quit halfway through their program?",
	"What mistakes did you make early in your coaching career, and what did you learn from them?",
	"How do you celebrate client wins? What exactly do you say or do?",
	"What boundaries do you hold with clients around availability and communication?",
	"Where do you want your coaching business to be in three years? What is the vision?",
	"If a client could only remember one sentence from working with you, what should it be?",
}
