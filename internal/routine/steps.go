package routine

type step struct {
	number      int
	instruction string
}

// steps is the scripted intake. Instruction text is injected into the agent's
// base instructions in place of the step placeholder; the model reports the
// outcome through routine_number in its structured reply.
var steps = map[int]step{
	1: {1, "Ask for the parent or guardian's first and last name. Validate it with the person_name_validation tool. If invalid, explain what to fix and stay on step 1; if valid, set routine_number to 2."},

	2: {2, "Ask for the child's first and last name. Validate it with person_name_validation, then call check_if_record_exists_in_db with the parent and child names. If no record exists, set routine_number to 3. If a record exists and the child did not play last season, welcome them back and set routine_number to 32. If they played last season, call check_if_kit_needed: set routine_number to 32 when kit is needed, otherwise 34."},

	3: {3, "Ask for the child's date of birth. Validate with child_dob_validation; the child must be born in 2007 or later. Tell the parent the computed age group. On success set routine_number to 4."},

	4: {4, "Ask for the child's gender (boy or girl is fine, any phrasing accepted). On a clear answer set routine_number to 5."},

	5: {5, "Ask whether the child has any medical conditions or allergies the coaches should know about. Validate with medical_issues_validation; if it asks for a follow-up, ask the follow-up question and stay on step 5. Once complete set routine_number to 6."},

	6: {6, "Ask whether the child played for another club last season, and if so which one. Any answer is acceptable. Set routine_number to 7."},

	7: {7, "Ask for your relationship to the child (mother, father, guardian, etc.). Set routine_number to 8."},

	8: {8, "Ask for the parent's UK mobile number. It must start with 07 and have 11 digits. If it doesn't, ask again and stay on step 8. On success set routine_number to 9."},

	9: {9, "Ask for the parent's email address. Check it looks like a real email address. On success set routine_number to 10."},

	10: {10, "Ask whether the club may contact them by email and SMS about fixtures, training and club news (yes or no). Record the answer and set routine_number to 11."},

	11: {11, "Ask for the parent's own date of birth. Validate the date; the parent must be an adult. On success set routine_number to 12."},

	12: {12, "Ask for the parent's postcode. On receiving something that looks like a UK postcode set routine_number to 13."},

	13: {13, "Ask for the house name or number, then call address_lookup with the postcode and house. If the lookup succeeds, present the formatted address and set routine_number to 15. If the lookup fails or the provider is unavailable, apologise and set routine_number to 14."},

	14: {14, "Ask the parent to type their full address manually. Validate it with address_validation. On success set routine_number to 15."},

	15: {15, "Show the parent's address back and ask them to confirm it is correct. If they want changes, stay on step 15 and correct it. Once confirmed set routine_number to 16."},

	16: {16, "Ask whether the child lives at the same address as the parent. If yes set routine_number to 22. If no set routine_number to 18."},

	17: {17, "Tell the parent you now need the child's home address, then set routine_number to 18."},

	18: {18, "Ask for the child's postcode. On receiving something that looks like a UK postcode set routine_number to 19."},

	19: {19, "Ask for the house name or number at the child's address, then call address_lookup. If the lookup succeeds, present the formatted address and set routine_number to 21. If it fails, set routine_number to 20."},

	20: {20, "Ask the parent to type the child's full address manually. Validate it with address_validation. On success set routine_number to 21."},

	21: {21, "Show the child's address back and ask for confirmation. Once confirmed set routine_number to 22."},

	22: {22, "Internal routing step. Do not ask the user anything; acknowledge briefly and set routine_number to 22 so the server can route on the child's age group."},

	23: {23, "Because the player is U16 or older, ask for the player's own mobile number. It must be a valid UK mobile and must differ from the parent's number. On success set routine_number to 24."},

	24: {24, "Ask for the player's own email address. It must differ from the parent's email. On success set routine_number to 25."},

	25: {25, "Summarise everything collected so far: parent details, child details, addresses and contact preferences. Ask the parent to check it carefully. When they confirm set routine_number to 26; if anything is wrong, correct it and stay on step 25."},

	26: {26, "Explain the fees: the one-off signing fee and the monthly subscription amount, collected by direct debit until the end of May. Ask if they are happy to continue. On yes set routine_number to 27."},

	27: {27, "Ask which day of the month they would like the subscription collected: any day from 1 to 28, or say 'last day' for the last day of the month. On a valid choice set routine_number to 28."},

	28: {28, "Confirm you are ready to set up payment. Tell the parent you will send a secure payment link by SMS. Set routine_number to 29."},

	29: {29, "Call create_payment_token with the preferred payment day, then update_reg_details_to_db with the full registration payload, then send_sms_payment_link with the parent's phone and the payment URL. Tell the parent the link is on its way and set routine_number to 30."},

	30: {30, "Ask the parent to complete the payment link when it arrives. Then, if kit is needed for this team and age group, set routine_number to 32; otherwise set routine_number to 34."},

	31: {31, "The parent asked about the payment link. Offer to resend it with send_sms_payment_link, then route as in step 30: routine_number 32 when kit is needed, otherwise 34."},

	32: {32, "Ask for the child's kit size (e.g. 5-6 years, 7-8 years, S, M, L). Record it with update_kit_details_to_db once the shirt number is chosen. Set routine_number to 33."},

	33: {33, "Ask which shirt number the player would like, from 1 to 25. Check it with check_shirt_number_availability; if taken, list that it is unavailable and ask again, staying on step 33. Once an available number is chosen, call update_kit_details_to_db and set routine_number to 34."},

	34: {34, "Ask the parent to upload a clear head-and-shoulders photo of the player using the upload button. When an UPLOADED_FILE_PATH marker appears in the conversation, call upload_photo_to_s3 with the path and player details, then update_photo_link_to_db with the returned URL. On success set routine_number to 35."},

	35: {35, "Registration is complete. Thank the parent, remind them of the first training session, and let them know the club will confirm once payment clears. Stay on step 35."},
}
