package monday

const (
	queryMe = `query { me { id name email } }`

	queryBoards = `query($limit:Int) {
  boards(limit:$limit) { id name board_kind state workspace { id name } }
}`

	queryMyBoards = `query { me { boards(limit: 500) { id name board_kind state workspace { id name } } } }`

	queryGroups = `query($boardId:[ID!]) {
  boards(ids:$boardId) { id groups { id title } }
}`

	queryColumns = `query($boardId:[ID!]) {
  boards(ids:$boardId) { id columns { id title type } }
}`

	queryItem = `query($id:[ID!]) {
  items(ids:$id) {
    id
    name
    board { id }
    group { id title }
    column_values { id text value }
  }
}`

	queryBoardItemsPage = `query($boardId:[ID!], $limit:Int) {
  boards(ids:$boardId) {
    id
    items_page(limit:$limit) {
      cursor
      items { id name group { id title } column_values { id text value } }
    }
  }
}`

	queryGroupItemsPage = `query($boardId:[ID!], $groupId:[String!]!, $limit:Int) {
  boards(ids:$boardId) {
    id
    groups(ids:$groupId) {
      id
      title
      items_page(limit:$limit) {
        cursor
        items { id name group { id title } column_values { id text value } }
      }
    }
  }
}`

	queryNextItemsPage = `query($cursor:String!, $limit:Int) {
  next_items_page(cursor:$cursor, limit:$limit) {
    cursor
    items { id name group { id title } column_values { id text value } }
  }
}`

	mutationCreateItem = `mutation($boardId:ID!, $groupId:String, $name:String!, $values:JSON) {
  create_item(board_id:$boardId, group_id:$groupId, item_name:$name, column_values:$values) { id }
}`

	mutationChangeValues = `mutation($itemId:ID!, $boardId:ID!, $values:JSON!) {
  change_multiple_column_values(item_id:$itemId, board_id:$boardId, column_values:$values) { id }
}`

	mutationCreateGroup = `mutation($boardId:ID!, $name:String!) {
  create_group(board_id:$boardId, group_name:$name) { id }
}`

	mutationDeleteItem  = `mutation($id:ID!) { delete_item(item_id:$id) { id } }`
	mutationArchiveItem = `mutation($id:ID!) { archive_item(item_id:$id) { id } }`

	mutationCreateUpdate = `mutation($itemId:ID!, $body:String!) {
  create_update(item_id:$itemId, body:$body) { id }
}`

	mutationCreateNotification = `mutation($userId:ID!, $targetId:ID!, $text:String!, $targetType:NotificationTargetType!) {
  create_notification(user_id:$userId, target_id:$targetId, text:$text, target_type:$targetType) { id }
}`
)
